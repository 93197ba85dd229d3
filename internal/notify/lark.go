package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"notiq/internal/upload"
	"notiq/pkg/logx"
)

// larkConnector posts to a Lark/Feishu custom bot webhook.
//
// Lark's signing variant uses the secret as both key material and message:
// the HMAC key is "{timestamp}\n{secret}" and the signed message is empty.
// Timestamps are seconds and travel as body fields, not query parameters.
type larkConnector struct {
	webhook string
	secret  string

	http    *http.Client
	up      upload.Uploader
	log     logx.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func newLark(props Properties, client *http.Client, up upload.Uploader, log logx.Logger) (*larkConnector, error) {
	if strings.TrimSpace(props.Webhook) == "" {
		return nil, fmt.Errorf("notify: lark webhook required")
	}
	return &larkConnector{
		webhook: props.Webhook,
		secret:  props.Secret,
		http:    client,
		up:      up,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		now:     time.Now,
	}, nil
}

// larkSign computes Base64(HMAC-SHA256(key="{timestamp}\n{secret}", msg="")).
func larkSign(timestamp int64, secret string) string {
	key := strconv.FormatInt(timestamp, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(key))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// sign adds timestamp/sign body fields when a secret is configured.
func (c *larkConnector) sign(body map[string]any) map[string]any {
	if c.secret == "" {
		return body
	}
	ts := c.now().Unix()
	body["timestamp"] = strconv.FormatInt(ts, 10)
	body["sign"] = larkSign(ts, c.secret)
	return body
}

func (c *larkConnector) post(ctx context.Context, body map[string]any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	status, err := postJSON(ctx, c.http, c.webhook, nil, c.sign(body), &out)
	if err != nil {
		return fmt.Errorf("notify: lark send: %w", err)
	}
	if status/100 != 2 {
		return fmt.Errorf("notify: lark send: http %d", status)
	}
	if out.Code != 0 {
		return fmt.Errorf("notify: lark code=%d: %s", out.Code, out.Msg)
	}
	return nil
}

func (c *larkConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *larkConnector) SendText(ctx context.Context, text string) error {
	return c.post(ctx, map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
}

func (c *larkConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	card := map[string]any{
		"elements": []any{
			map[string]any{"tag": "markdown", "content": msg.Text},
		},
	}
	if msg.Title != "" {
		card["header"] = map[string]any{
			"title": map[string]string{"tag": "plain_text", "content": msg.Title},
		}
	}
	return c.post(ctx, map[string]any{
		"msg_type": "interactive",
		"card":     card,
	})
}

// SendImage degrades to a rich-text post of links: the custom bot webhook
// has no upload surface, so base64 images go through the media uploader.
func (c *larkConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	var lines [][]map[string]string
	if msg.Desc != "" {
		lines = append(lines, []map[string]string{{"tag": "text", "text": msg.Desc}})
	}

	resolved := 0
	for i, img := range msg.Images {
		u, err := resolveImageURL(ctx, c.up, img, i)
		if err != nil {
			if err == ErrEmptyImage {
				c.log.Warn("lark image skipped: empty payload", logx.Int("index", i))
				continue
			}
			return err
		}
		lines = append(lines, []map[string]string{{"tag": "a", "text": imageFilename(img, i), "href": u}})
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
		"msg_type": "post",
		"content": map[string]any{
			"post": map[string]any{
				"zh_cn": map[string]any{
					"title":   title,
					"content": lines,
				},
			},
		},
	})
}
