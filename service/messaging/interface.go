// Package messaging defines the queue abstraction used to hand job
// submissions to runner workers and fan events out to listeners.
package messaging

import (
	"context"
)

// Queue is a generic message queue. Implementations must be safe for
// concurrent publishers and consumers.
type Queue[T any] interface {
	// Publish enqueues a payload. It blocks when the queue is at capacity
	// until space frees up or ctx is done.
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done.
	Consume(ctx context.Context) (Message[T], error)

	// Size reports the number of messages currently queued.
	Size() int
}

// Message is a single consumed unit. Exactly one of Ack or Nack must be
// called per message.
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack reports a processing failure; the message is redelivered until
	// the retry budget is exhausted
	Nack(err error) error
}
