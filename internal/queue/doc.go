// Package queue owns the broker side of the delivery pipeline: one AMQP
// connection and one multiplexed channel, type-scoped durable queues,
// immediate and delayed publishing, and consumer lifecycle management
// (subscribe / pause / resume) with manual ack/nack.
//
// Delivery semantics are at-least-once with a deliberate fail-discard
// policy: a handler error nacks the message without requeue. Callers that
// need retry implement it inside the handler.
//
// Delayed publishing relies on the broker's x-delayed-message exchange
// plugin; without the plugin the delayed path fails at exchange declare.
package queue
