package notify

import "context"

// Channel types accepted by the dispatcher.
const (
	ChannelDing     = "ding"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
	ChannelLark     = "lark"
	ChannelDiscord  = "discord"
)

// Properties is the per-channel credential/target bundle stored on a
// subscription. Each connector reads only the fields of its family and
// validates them at construction; the bundle is immutable afterwards.
type Properties struct {
	// Webhook family (Ding, Lark).
	Webhook string `json:"webhook,omitempty"`
	Secret  string `json:"secret,omitempty"`

	// Bot-token family (Telegram, Discord).
	Token     string `json:"token,omitempty"`
	ChatID    int64  `json:"chatId,omitempty"`    // telegram chat
	ChannelID string `json:"channelId,omitempty"` // discord channel

	// OAuth-refreshable family (Slack).
	Channel      string `json:"channel,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`

	// SMTP family (Email).
	Host       string   `json:"host,omitempty"`
	Port       int      `json:"port,omitempty"`
	Account    string   `json:"account,omitempty"`
	Password   string   `json:"password,omitempty"`
	From       string   `json:"from,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	SSL        bool     `json:"ssl,omitempty"`
}

// Markdown is a rich-text message. Channels without native markdown
// degrade gracefully (plain send or HTML email body).
type Markdown struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Image is one image of an image message. Exactly one of URL/Base64 is
// set; Base64 may carry a "data:<mime>;base64," prefix.
type Image struct {
	URL      string `json:"url,omitempty"`
	Base64   string `json:"base64,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ImageMessage is constructed per send call and never persisted here.
type ImageMessage struct {
	Title  string  `json:"title,omitempty"`
	Desc   string  `json:"desc,omitempty"`
	Images []Image `json:"images"`
}

// Connector is the uniform notify contract every channel implements.
type Connector interface {
	// Test sends a canned text message to validate the configuration.
	Test(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SendMarkdown(ctx context.Context, msg Markdown) error
	SendImage(ctx context.Context, msg ImageMessage) error
}

// testMessage is what Test() sends on every channel.
const testMessage = "hello"
