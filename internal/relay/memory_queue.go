package relay

import (
	"context"
	"fmt"
	"sync"

	"ingressgw/pkg/platform/sentinel"
)

// MemoryQueue is a bounded in-process queue. A single channel keeps global FIFO order,
// which implies per-key order. Publish never waits on the consumer: a full buffer is
// reported as sentinel.ErrUnavailable.
type MemoryQueue struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryQueue{
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	if msg.Key == "" {
		return sentinel.ErrEmptyKey
	}
	select {
	case <-q.done:
		return fmt.Errorf("memory queue: %w", sentinel.ErrClosed)
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory queue: %w", err)
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("memory queue full (%d buffered): %w", cap(q.ch), sentinel.ErrUnavailable)
	}
}

// Run hands messages to handle one at a time. The queue never redelivers, so handler
// errors are dropped here.
func (q *MemoryQueue) Run(ctx context.Context, handle func(context.Context, Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case msg := <-q.ch:
			_ = handle(ctx, msg)
		}
	}
}

// Len reports the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
