package messaging

import (
	"context"
	"time"
)

const (
	ColorizeQueue   = "colorize_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	// Requeue returns the task to the queue for another attempt.
	Requeue() error

	Reject() error
}

// ColorizeTaskPayload references a PENDING job whose upload is already stored.
type ColorizeTaskPayload struct {
	JobId string
}

type Publisher interface {
	PublishColorizeTask(ctx context.Context, payload ColorizeTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
