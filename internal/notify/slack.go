package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"notiq/internal/upload"
	"notiq/pkg/logx"
)

const slackAPIBase = "https://slack.com/api"

// slackConnector posts via Slack's Web API with a short-lived bearer
// token. A stale token (HTTP 401 or an auth error in the body) triggers
// one synchronous refresh-token exchange and a single retry of the
// original request.
//
// Concurrent senders hitting a stale token coalesce onto one in-flight
// refresh: most OAuth providers invalidate a refresh token on use, so two
// racing exchanges would strand the connector.
type slackConnector struct {
	channel      string
	clientID     string
	clientSecret string

	http *http.Client
	up   upload.Uploader
	log  logx.Logger
	api  string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	inflight     *refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

func newSlack(props Properties, client *http.Client, up upload.Uploader, log logx.Logger) (*slackConnector, error) {
	if strings.TrimSpace(props.AccessToken) == "" {
		return nil, fmt.Errorf("notify: slack access token required")
	}
	if strings.TrimSpace(props.Channel) == "" {
		return nil, fmt.Errorf("notify: slack channel required")
	}
	return &slackConnector{
		channel:      props.Channel,
		clientID:     props.ClientID,
		clientSecret: props.ClientSecret,
		http:         client,
		up:           up,
		log:          log,
		api:          slackAPIBase,
		accessToken:  props.AccessToken,
		refreshToken: props.RefreshToken,
	}, nil
}

func (c *slackConnector) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// post sends body to chat.postMessage, refreshing the token and retrying
// exactly once when the first attempt fails on staleness.
func (c *slackConnector) post(ctx context.Context, body map[string]any) error {
	tok := c.token()
	stale, err := c.postMessage(ctx, tok, body)
	if err == nil || !stale {
		return err
	}

	fresh, rerr := c.freshToken(ctx, tok)
	if rerr != nil {
		return fmt.Errorf("notify: slack token refresh: %w", rerr)
	}
	_, err = c.postMessage(ctx, fresh, body)
	return err
}

// postMessage performs one chat.postMessage call. stale reports whether
// the failure was a recoverable auth staleness.
func (c *slackConnector) postMessage(ctx context.Context, token string, body map[string]any) (stale bool, err error) {
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := postJSON(ctx, c.http, c.api+"/chat.postMessage", headers, body, &out)
	if err != nil {
		return false, fmt.Errorf("notify: slack send: %w", err)
	}
	if status == http.StatusUnauthorized {
		return true, fmt.Errorf("notify: slack send: http 401")
	}
	if status/100 != 2 {
		return false, fmt.Errorf("notify: slack send: http %d", status)
	}
	if !out.OK {
		switch out.Error {
		case "invalid_auth", "token_expired":
			return true, fmt.Errorf("notify: slack auth stale: %s", out.Error)
		default:
			return false, fmt.Errorf("notify: slack error: %s", out.Error)
		}
	}
	return false, nil
}

// freshToken returns a token newer than stale, starting a refresh exchange
// or joining the in-flight one.
func (c *slackConnector) freshToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && c.accessToken != stale {
		// Someone already refreshed.
		tok := c.accessToken
		c.mu.Unlock()
		return tok, nil
	}
	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.refreshToken == "" {
		c.mu.Unlock()
		return "", fmt.Errorf("notify: slack refresh token not configured")
	}
	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	refresh := c.refreshToken
	c.mu.Unlock()

	token, newRefresh, err := c.exchange(ctx, refresh)

	c.mu.Lock()
	c.inflight = nil
	if err == nil {
		c.accessToken = token
		if newRefresh != "" {
			c.refreshToken = newRefresh
		}
	}
	c.mu.Unlock()

	call.token, call.err = token, err
	close(call.done)
	return token, err
}

// exchange performs the oauth.v2.access refresh-token grant.
func (c *slackConnector) exchange(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var out struct {
		OK           bool   `json:"ok"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Error        string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode oauth response: %w", err)
	}
	if !out.OK || out.AccessToken == "" {
		return "", "", fmt.Errorf("oauth exchange failed: %s", out.Error)
	}
	c.log.Debug("slack token refreshed")
	return out.AccessToken, out.RefreshToken, nil
}

func (c *slackConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *slackConnector) SendText(ctx context.Context, text string) error {
	return c.post(ctx, map[string]any{
		"channel": c.channel,
		"text":    text,
	})
}

func (c *slackConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	text := msg.Text
	if msg.Title != "" {
		text = "*" + msg.Title + "*\n" + text
	}
	return c.post(ctx, map[string]any{
		"channel": c.channel,
		"text":    text,
		"blocks": []any{
			map[string]any{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": text},
			},
		},
	})
}

func (c *slackConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	blocks := make([]any, 0, len(msg.Images)+1)
	if msg.Title != "" || msg.Desc != "" {
		header := msg.Title
		if msg.Desc != "" {
			if header != "" {
				header += "\n"
			}
			header += msg.Desc
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": header},
		})
	}

	resolved := 0
	for i, img := range msg.Images {
		u, err := resolveImageURL(ctx, c.up, img, i)
		if err != nil {
			if err == ErrEmptyImage {
				c.log.Warn("slack image skipped: empty payload", logx.Int("index", i))
				continue
			}
			return err
		}
		blocks = append(blocks, map[string]any{
			"type":      "image",
			"image_url": u,
			"alt_text":  imageFilename(img, i),
		})
		resolved++
	}
	if resolved == 0 {
		return ErrEmptyImage
	}

	fallback := msg.Title
	if fallback == "" {
		fallback = "Report"
	}
	return c.post(ctx, map[string]any{
		"channel": c.channel,
		"text":    fallback,
		"blocks":  blocks,
	})
}
