package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"notiq/internal/upload"
	"notiq/pkg/logx"
)

// dingConnector posts to a DingTalk group robot webhook.
//
// With a signing secret configured every request carries timestamp+sign
// query parameters; without one the webhook is called as-is. DingTalk
// throttles robots at 20 messages per minute, enforced client-side here.
type dingConnector struct {
	webhook string
	secret  string

	http    *http.Client
	up      upload.Uploader
	log     logx.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func newDing(props Properties, client *http.Client, up upload.Uploader, log logx.Logger) (*dingConnector, error) {
	if strings.TrimSpace(props.Webhook) == "" {
		return nil, fmt.Errorf("notify: ding webhook required")
	}
	return &dingConnector{
		webhook: props.Webhook,
		secret:  props.Secret,
		http:    client,
		up:      up,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 5),
		now:     time.Now,
	}, nil
}

// dingSign computes Base64(HMAC-SHA256("{timestamp}\n{secret}", secret)).
func dingSign(timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signedURL appends timestamp+sign query parameters when a secret is
// configured. Timestamps are milliseconds.
func (c *dingConnector) signedURL() (string, error) {
	if c.secret == "" {
		return c.webhook, nil
	}
	u, err := url.Parse(c.webhook)
	if err != nil {
		return "", fmt.Errorf("notify: ding webhook: %w", err)
	}
	ts := c.now().UnixMilli()
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", dingSign(ts, c.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *dingConnector) post(ctx context.Context, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	target, err := c.signedURL()
	if err != nil {
		return err
	}

	var out struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	status, err := postJSON(ctx, c.http, target, nil, body, &out)
	if err != nil {
		return fmt.Errorf("notify: ding send: %w", err)
	}
	if status/100 != 2 {
		return fmt.Errorf("notify: ding send: http %d", status)
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("notify: ding errcode=%d: %s", out.ErrCode, out.ErrMsg)
	}
	return nil
}

func (c *dingConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *dingConnector) SendText(ctx context.Context, text string) error {
	return c.post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": text},
	})
}

func (c *dingConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	title := msg.Title
	if title == "" {
		title = "Report"
	}
	return c.post(ctx, map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"title": title, "text": msg.Text},
	})
}

// SendImage degrades to a markdown message of image links: the robot
// webhook cannot accept inline binaries, so base64 images are uploaded
// first and referenced by URL.
func (c *dingConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString("### " + msg.Title + "\n\n")
	}
	if msg.Desc != "" {
		b.WriteString(msg.Desc + "\n\n")
	}

	resolved := 0
	for i, img := range msg.Images {
		u, err := resolveImageURL(ctx, c.up, img, i)
		if err != nil {
			if err == ErrEmptyImage {
				c.log.Warn("ding image skipped: empty payload", logx.Int("index", i))
				continue
			}
			return err
		}
		b.WriteString(fmt.Sprintf("![](%s)\n\n", u))
		resolved++
	}
	if resolved == 0 {
		return ErrEmptyImage
	}

	title := msg.Title
	if title == "" {
		title = "Report"
	}
	return c.post(ctx, map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"title": title, "text": b.String()},
	})
}
