package relay

import "context"

// Publisher appends a message to the relay queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer yields queued messages in per-key FIFO order to a single logical consumer.
// Run blocks until ctx is cancelled or the queue is closed.
type Consumer interface {
	Run(ctx context.Context, handle func(context.Context, Message) error) error
}

// Queue is both ends of the relay queue.
type Queue interface {
	Publisher
	Consumer
	Close() error
}
