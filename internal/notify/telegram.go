package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	"notiq/pkg/logx"
)

// telegramMaxAlbum is Telegram's cap on photos per grouped-media request.
const telegramMaxAlbum = 10

// telegramConnector sends through the Bot API. The bot handle is created
// offline (no getMe roundtrip) so constructing a connector never touches
// the network.
type telegramConnector struct {
	bot *tele.Bot
	to  tele.ChatID
	log logx.Logger
}

func newTelegram(props Properties, client *http.Client, log logx.Logger) (*telegramConnector, error) {
	if strings.TrimSpace(props.Token) == "" {
		return nil, fmt.Errorf("notify: telegram bot token required")
	}
	if props.ChatID == 0 {
		return nil, fmt.Errorf("notify: telegram chat id required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   props.Token,
		Offline: true,
		Client:  client,
	})
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot: %w", err)
	}
	return &telegramConnector{bot: b, to: tele.ChatID(props.ChatID), log: log}, nil
}

func (c *telegramConnector) Test(ctx context.Context) error {
	return c.SendText(ctx, testMessage)
}

func (c *telegramConnector) SendText(ctx context.Context, text string) error {
	_, err := c.bot.Send(c.to, text)
	if err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}

func (c *telegramConnector) SendMarkdown(ctx context.Context, msg Markdown) error {
	text := msg.Text
	if msg.Title != "" {
		text = "*" + msg.Title + "*\n" + text
	}
	_, err := c.bot.Send(c.to, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	if err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}

// SendImage batches up to 10 photos into grouped-media requests. URL
// images are referenced directly; base64 images attach from a reader so
// the Bot API receives them as multipart uploads.
func (c *telegramConnector) SendImage(ctx context.Context, msg ImageMessage) error {
	caption := msg.Title
	if msg.Desc != "" {
		if caption != "" {
			caption += "\n"
		}
		caption += msg.Desc
	}

	photos := make([]*tele.Photo, 0, len(msg.Images))
	for i, img := range msg.Images {
		switch {
		case img.URL != "":
			photos = append(photos, &tele.Photo{File: tele.FromURL(img.URL)})
		case img.Base64 != "":
			data, err := decodeImage(img)
			if err != nil {
				return err
			}
			photos = append(photos, &tele.Photo{File: tele.FromReader(bytes.NewReader(data))})
		default:
			c.log.Warn("telegram image skipped: empty payload", logx.Int("index", i))
		}
	}
	if len(photos) == 0 {
		return ErrEmptyImage
	}

	if caption != "" {
		photos[0].Caption = caption
	}

	if len(photos) == 1 {
		if _, err := c.bot.Send(c.to, photos[0]); err != nil {
			return fmt.Errorf("notify: telegram send photo: %w", err)
		}
		return nil
	}

	for start := 0; start < len(photos); start += telegramMaxAlbum {
		end := start + telegramMaxAlbum
		if end > len(photos) {
			end = len(photos)
		}
		album := make(tele.Album, 0, end-start)
		for _, p := range photos[start:end] {
			album = append(album, p)
		}
		if _, err := c.bot.SendAlbum(c.to, album); err != nil {
			return fmt.Errorf("notify: telegram send album: %w", err)
		}
	}
	return nil
}
