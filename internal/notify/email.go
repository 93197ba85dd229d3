package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	mail "github.com/wneessen/go-mail"

	"notiq/pkg/logx"
)

// emailConnector delivers over SMTP. Image messages become an HTML body:
// base64 images are decoded and embedded inline via content-ID references,
// URL images are referenced directly and fetched by the recipient's
// client.
type emailConnector struct {
	props Properties
	log   logx.Logger
}

type emailEmbed struct {
	cid         string
	contentType string
	data        []byte
}

func newEmail(props Properties, log logx.Logger) (*emailConnector, error) {
	if strings.TrimSpace(props.Host) == "" {
		return nil, fmt.Errorf("notify: smtp host required")
	}
	if len(props.Recipients) == 0 {
		return nil, fmt.Errorf("notify: email recipients required")
	}
	if props.From == "" && props.Account == "" {
		return nil, fmt.Errorf("notify: email sender required")
	}
	return &emailConnector{props: props, log: log}, nil
}

func (c *emailConnector) client() (*mail.Client, error) {
	port := c.props.Port
	if port == 0 {
		port = 25
	}
	opts := []mail.Option{mail.WithPort(port)}
	if c.props.Account != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.props.Account),
			mail.WithPassword(c.props.Password),
		)
	}
	if c.props.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(c.props.Host, opts...)
}

func (c *emailConnector) from() string {
	if c.props.From != "" {
		return c.props.From
	}
	return c.props.Account
}

func (c *emailConnector) compose(subject string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(c.from()); err != nil {
		return nil, fmt.Errorf("notify: email from: %w", err)
	}
	if err := m.To(c.props.Recipients...); err != nil {
		return nil, fmt.Errorf("notify: email recipients: %w", err)
	}
	m.Subject(subject)
	return m, nil
}

func (c *emailConnector) deliver(ctx context.Context, m *mail.Msg) error {
	cl, err := c.client()
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	if err := cl.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

func (c *emailConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *emailConnector) SendText(ctx context.Context, text string) error {
	m, err := c.compose(subjectFor("", text))
	if err != nil {
		return err
	}
	m.SetBodyString(mail.TypeTextPlain, text)
	return c.deliver(ctx, m)
}

// SendMarkdown degrades to an HTML body: email has no markdown rendering.
func (c *emailConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	m, err := c.compose(subjectFor(msg.Title, msg.Text))
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	if msg.Title != "" {
		b.WriteString("<h3>" + html.EscapeString(msg.Title) + "</h3>")
	}
	b.WriteString("<pre>" + html.EscapeString(msg.Text) + "</pre>")
	b.WriteString("</body></html>")
	m.SetBodyString(mail.TypeTextHTML, b.String())
	return c.deliver(ctx, m)
}

func (c *emailConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	body, embeds, err := buildImageHTML(msg, c.log)
	if err != nil {
		return err
	}

	m, err := c.compose(subjectFor(msg.Title, msg.Desc))
	if err != nil {
		return err
	}
	m.SetBodyString(mail.TypeTextHTML, body)
	for _, e := range embeds {
		if err := m.EmbedReader(e.cid, bytes.NewReader(e.data), mail.WithFileContentType(mail.ContentType(e.contentType))); err != nil {
			return fmt.Errorf("notify: email embed %q: %w", e.cid, err)
		}
	}
	return c.deliver(ctx, m)
}

// buildImageHTML renders the HTML body for an image message and collects
// the inline embeds. Items with neither url nor base64 are skipped.
func buildImageHTML(msg ImageMessage, log logx.Logger) (string, []emailEmbed, error) {
	var b strings.Builder
	b.WriteString("<html><body>")
	if msg.Title != "" {
		b.WriteString("<h3>" + html.EscapeString(msg.Title) + "</h3>")
	}
	if msg.Desc != "" {
		b.WriteString("<p>" + html.EscapeString(msg.Desc) + "</p>")
	}

	var embeds []emailEmbed
	resolved := 0
	for i, img := range msg.Images {
		switch {
		case img.URL != "":
			b.WriteString(fmt.Sprintf("<p><img src=%q/></p>", img.URL))
			resolved++
		case img.Base64 != "":
			data, err := decodeImage(img)
			if err != nil {
				return "", nil, err
			}
			name := imageFilename(img, i)
			embeds = append(embeds, emailEmbed{cid: name, contentType: contentTypeFor(name), data: data})
			b.WriteString(fmt.Sprintf("<p><img src=\"cid:%s\"/></p>", name))
			resolved++
		default:
			log.Warn("email image skipped: empty payload", logx.Int("index", i))
		}
	}
	if resolved == 0 {
		return "", nil, ErrEmptyImage
	}

	b.WriteString("</body></html>")
	return b.String(), embeds, nil
}

// subjectFor derives a subject line: the title when present, else the
// first line of the body, else a fixed default.
func subjectFor(title, body string) string {
	if title != "" {
		return title
	}
	line := body
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "Report"
	}
	if len(line) > 78 {
		cut := 78
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut]
	}
	return line
}
