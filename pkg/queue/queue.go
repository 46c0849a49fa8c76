// Package queue implements at-least-once message consumption for the
// lifecycle workers: a long-poll SQS queue, a polling consumer pool, and an
// SNS push adapter that share one handler abstraction.
package queue

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single delivery. Body is the unwrapped event payload; the
// receipt handle acknowledges this specific delivery.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
}

// Queue is an at-least-once message source with explicit per-message
// acknowledgment. Receive blocks up to the configured wait time and returns
// at most the configured batch size.
type Queue interface {
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
}

// Disposition tells the consumer what to do with a message after handling.
type Disposition int

const (
	// Ack deletes the message. Used after the corresponding record write
	// succeeded or was confirmed a harmless duplicate, and for poison
	// messages that can never become processable.
	Ack Disposition = iota

	// Retry leaves the message for redelivery after the queue's
	// visibility timeout. Used for transient infrastructure failures.
	Retry
)

// Handler processes one message. Returning Ack with a non-nil error means
// the message is consumed but the failure is worth logging (poison drops,
// per-job terminal errors). Returning Retry leaves the delivery in place.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Disposition, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) (Disposition, error)

func (f HandlerFunc) Handle(ctx context.Context, msg Message) (Disposition, error) {
	return f(ctx, msg)
}

// ErrQueueClosed indicates the queue is gone and the consumer should stop.
var ErrQueueClosed = errors.New("queue closed")

// QueueError wraps queue failures with context.
type QueueError struct {
	Op    string
	Queue string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %s: %v", e.Op, e.Queue, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *QueueError) Unwrap() error {
	return e.Err
}
