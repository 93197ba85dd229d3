// Package metrics holds notiq's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiq_messages_published_total",
		Help: "Messages published to the broker, by message type and delivery mode",
	}, []string{"type", "mode"})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiq_messages_consumed_total",
		Help: "Messages consumed from the broker, by message type and outcome (ack/nack)",
	}, []string{"type", "outcome"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiq_deliveries_total",
		Help: "Channel deliveries attempted, by channel type and outcome",
	}, []string{"channel", "outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "notiq_delivery_seconds",
		Help: "Time to deliver one notification end-to-end in the worker",
	})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiq_uploads_total",
		Help: "Media uploads attempted, by outcome",
	}, []string{"outcome"})
)
