package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"notiq/pkg/logx"
)

const (
	discordAPIBase = "https://discord.com/api/v10"

	// discordMaxBatch is Discord's per-message cap on embeds/attachments.
	discordMaxBatch = 10
)

// discordConnector posts to a channel through the bot API with an
// "Authorization: Bot <token>" header. URL images ride as embeds without
// re-upload; base64 images attach as multipart form files referenced by
// attachment:// URLs, up to 10 per grouped request.
type discordConnector struct {
	token     string
	channelID string

	http *http.Client
	log  logx.Logger
	api  string
}

type discordFile struct {
	name        string
	contentType string
	data        []byte
}

func newDiscord(props Properties, client *http.Client, log logx.Logger) (*discordConnector, error) {
	if strings.TrimSpace(props.Token) == "" {
		return nil, fmt.Errorf("notify: discord bot token required")
	}
	if strings.TrimSpace(props.ChannelID) == "" {
		return nil, fmt.Errorf("notify: discord channel id required")
	}
	return &discordConnector{
		token:     props.Token,
		channelID: props.ChannelID,
		http:      client,
		log:       log,
		api:       discordAPIBase,
	}, nil
}

func (c *discordConnector) endpoint() string {
	return fmt.Sprintf("%s/channels/%s/messages", c.api, c.channelID)
}

func (c *discordConnector) send(ctx context.Context, payload map[string]any, files []discordFile) error {
	var req *http.Request
	var err error

	if len(files) == 0 {
		var b []byte
		b, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("notify: discord marshal: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		pj, merr := json.Marshal(payload)
		if merr != nil {
			return fmt.Errorf("notify: discord marshal: %w", merr)
		}
		if werr := mw.WriteField("payload_json", string(pj)); werr != nil {
			return fmt.Errorf("notify: discord form: %w", werr)
		}
		for i, f := range files {
			hdr := make(textproto.MIMEHeader)
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, f.name))
			hdr.Set("Content-Type", f.contentType)
			part, perr := mw.CreatePart(hdr)
			if perr != nil {
				return fmt.Errorf("notify: discord form: %w", perr)
			}
			if _, werr := part.Write(f.data); werr != nil {
				return fmt.Errorf("notify: discord form: %w", werr)
			}
		}
		if cerr := mw.Close(); cerr != nil {
			return fmt.Errorf("notify: discord form: %w", cerr)
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
	}

	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify: discord send: http %d: %s", resp.StatusCode, readBodyError(resp.Body))
	}
	return nil
}

func (c *discordConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *discordConnector) SendText(ctx context.Context, text string) error {
	return c.send(ctx, map[string]any{"content": text}, nil)
}

// SendMarkdown sends the text as-is: Discord message content is markdown.
func (c *discordConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	content := msg.Text
	if msg.Title != "" {
		content = "**" + msg.Title + "**\n" + content
	}
	return c.send(ctx, map[string]any{"content": content}, nil)
}

func (c *discordConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	type item struct {
		embed map[string]any
		file  *discordFile
	}

	items := make([]item, 0, len(msg.Images))
	for i, img := range msg.Images {
		switch {
		case img.URL != "":
			items = append(items, item{embed: map[string]any{"image": map[string]string{"url": img.URL}}})
		case img.Base64 != "":
			data, err := decodeImage(img)
			if err != nil {
				return err
			}
			name := imageFilename(img, i)
			items = append(items, item{
				embed: map[string]any{"image": map[string]string{"url": "attachment://" + name}},
				file:  &discordFile{name: name, contentType: contentTypeFor(name), data: data},
			})
		default:
			c.log.Warn("discord image skipped: empty payload", logx.Int("index", i))
		}
	}
	if len(items) == 0 {
		return ErrEmptyImage
	}

	content := msg.Title
	if msg.Desc != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.Desc
	}

	for start := 0; start < len(items); start += discordMaxBatch {
		end := start + discordMaxBatch
		if end > len(items) {
			end = len(items)
		}

		embeds := make([]any, 0, end-start)
		var files []discordFile
		for _, it := range items[start:end] {
			embeds = append(embeds, it.embed)
			if it.file != nil {
				files = append(files, *it.file)
			}
		}

		payload := map[string]any{"embeds": embeds}
		if start == 0 && content != "" {
			payload["content"] = content
		}
		if err := c.send(ctx, payload, files); err != nil {
			return err
		}
	}
	return nil
}
