package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the wire format of every queue message (UTF-8 JSON).
//
// The message type is not part of the body: it is carried by the queue name
// itself ("<prefix>.<type>" when a prefix is configured, else "<type>").
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	DeliverAt *time.Time      `json:"deliverAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Handler processes the payload of one delivered message.
//
// A nil return acknowledges the message; an error (or panic) discards it
// permanently (nack without requeue).
type Handler func(ctx context.Context, payload json.RawMessage) error
