package queue

import "errors"

var (
	ErrNotConnected      = errors.New("queue: not connected")
	ErrClosed            = errors.New("queue: scheduler closed")
	ErrAlreadySubscribed = errors.New("queue: type already has a consumer")
	ErrPublishNotAcked   = errors.New("queue: broker did not confirm publish")
)
