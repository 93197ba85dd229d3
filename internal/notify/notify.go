package notify

import (
	"fmt"
	"net/http"
	"time"

	"notiq/internal/upload"
	"notiq/pkg/logx"
)

// Dispatcher routes a channel type and its credential bundle to the
// matching Connector. It carries the shared HTTP client and the media
// uploader so connectors stay cheap to construct per delivery.
type Dispatcher struct {
	uploader upload.Uploader
	http     *http.Client
	log      logx.Logger
}

func NewDispatcher(uploader upload.Uploader, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		uploader: uploader,
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

// Connector constructs the connector for channelType. Unknown types and
// missing credentials fail here, synchronously, before any network I/O.
func (d *Dispatcher) Connector(channelType string, props Properties) (Connector, error) {
	switch channelType {
	case ChannelDing:
		return newDing(props, d.http, d.uploader, d.log)
	case ChannelLark:
		return newLark(props, d.http, d.uploader, d.log)
	case ChannelSlack:
		return newSlack(props, d.http, d.uploader, d.log)
	case ChannelDiscord:
		return newDiscord(props, d.http, d.log)
	case ChannelTelegram:
		return newTelegram(props, d.http, d.log)
	case ChannelEmail:
		return newEmail(props, d.log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channelType)
	}
}
