// Package delivery consumes notification jobs from the broker queue and
// hands them to the matching channel connector.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notiq/internal/metrics"
	"notiq/internal/notify"
	"notiq/internal/schedule"
	"notiq/pkg/logx"
)

// Job is one queued notification. Kind selects which connector
// operation runs; the unused content fields stay empty.
type Job struct {
	Channel    string            `json:"channel"`
	Properties notify.Properties `json:"properties"`

	Kind   string         `json:"kind"` // "test" | "text" | "markdown" | "image"
	Text   string         `json:"text,omitempty"`
	Title  string         `json:"title,omitempty"`
	Desc   string         `json:"desc,omitempty"`
	Images []notify.Image `json:"images,omitempty"`

	// Schedule, when set, makes the job recurring: after a successful
	// delivery the worker re-enqueues it for the next firing time.
	Schedule string `json:"schedule,omitempty"`
}

const (
	KindTest     = "test"
	KindText     = "text"
	KindMarkdown = "markdown"
	KindImage    = "image"
)

// connectorFactory is what the worker needs from the dispatcher.
type connectorFactory interface {
	Connector(channelType string, props notify.Properties) (notify.Connector, error)
}

// Publisher re-enqueues recurring jobs for their next firing time.
type Publisher interface {
	SendMessage(ctx context.Context, msgType string, payload any, deliverAt *time.Time) error
}

// Worker turns queue payloads into connector calls. Its Handle method
// is the queue handler for the delivery queue; returning an error
// discards the message without requeue.
type Worker struct {
	dispatcher connectorFactory
	log        logx.Logger

	pub   Publisher
	queue string
	now   func() time.Time
}

func NewWorker(dispatcher *notify.Dispatcher, log logx.Logger) *Worker {
	return &Worker{dispatcher: dispatcher, log: log, now: time.Now}
}

// SetRequeue enables recurring jobs: successful deliveries with a
// schedule are published back to msgType with the next firing time.
func (w *Worker) SetRequeue(pub Publisher, msgType string) {
	w.pub = pub
	w.queue = msgType
}

// Handle decodes one job and runs the matching connector operation.
func (w *Worker) Handle(ctx context.Context, payload json.RawMessage) error {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		w.log.Error("delivery: malformed job", logx.Err(err))
		return fmt.Errorf("delivery: decode job: %w", err)
	}

	start := time.Now()
	err := w.run(ctx, job)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(job.Channel, "error").Inc()
		w.log.Error("delivery failed",
			logx.String("channel", job.Channel),
			logx.String("kind", job.Kind),
			logx.Err(err))
		return err
	}
	metrics.DeliveriesTotal.WithLabelValues(job.Channel, "ok").Inc()
	w.log.Info("delivered",
		logx.String("channel", job.Channel),
		logx.String("kind", job.Kind),
		logx.Duration("took", time.Since(start)))

	if job.Schedule != "" && w.pub != nil {
		if err := w.reschedule(ctx, job); err != nil {
			// The delivery itself succeeded; a lost recurrence is logged,
			// not retried through the queue.
			w.log.Error("reschedule failed",
				logx.String("channel", job.Channel),
				logx.String("schedule", job.Schedule),
				logx.Err(err))
		}
	}
	return nil
}

func (w *Worker) reschedule(ctx context.Context, job Job) error {
	spec, err := schedule.Parse(job.Schedule)
	if err != nil {
		return err
	}
	next := spec.Next(w.now())
	if err := w.pub.SendMessage(ctx, w.queue, job, &next); err != nil {
		return err
	}
	w.log.Debug("recurrence queued",
		logx.String("channel", job.Channel),
		logx.Time("next", next))
	return nil
}

func (w *Worker) run(ctx context.Context, job Job) error {
	conn, err := w.dispatcher.Connector(job.Channel, job.Properties)
	if err != nil {
		return err
	}

	switch job.Kind {
	case KindTest:
		return conn.Test(ctx)
	case KindText:
		return conn.SendText(ctx, job.Text)
	case KindMarkdown:
		return conn.SendMarkdown(ctx, notify.Markdown{Title: job.Title, Text: job.Text})
	case KindImage:
		return conn.SendImage(ctx, notify.ImageMessage{
			Title:  job.Title,
			Desc:   job.Desc,
			Images: job.Images,
		})
	default:
		return fmt.Errorf("delivery: unknown job kind %q", job.Kind)
	}
}
