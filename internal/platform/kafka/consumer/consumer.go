package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a transport-neutral view of a consumed record.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler processes one message. Returning an error does not block the partition:
// the failure is logged and the offset is committed. The exception is an interrupted
// handler (context cancelled): that record and everything after it stay uncommitted
// so the group redelivers them.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config holds the consumer group settings.
type Config struct {
	Brokers  []string
	Topics   []string
	Group    string
	ClientID string
}

// Consumer reads records for a consumer group and hands them to a Handler one at a
// time, in partition order.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if cfg.Group == "" || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer: group and topics are required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if cfg.ClientID != "" {
		base = append(base, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until ctx is cancelled or the client is closed. Fetch errors are logged
// and polling continues; the client reconnects on its own.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		handled := c.handleRecords(ctx, handler, fetches.Records())
		if len(handled) > 0 {
			// commit with a fresh context so a shutdown still records progress
			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := c.client.CommitRecords(commitCtx, handled...); err != nil {
				c.logger.ErrorContext(ctx, "kafka commit failed", "error", err)
			}
			cancel()
		}
	}
}

// handleRecords runs handler over records in fetch order and returns the ones whose
// handling finished. Commits are per-partition high-water marks, so processing stops at
// the first interrupted record rather than skipping over it.
func (c *Consumer) handleRecords(ctx context.Context, handler Handler, records []*kgo.Record) []*kgo.Record {
	handled := make([]*kgo.Record, 0, len(records))
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		msg := FromRecord(rec)
		err := handler.Handle(ctx, msg)
		if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
			c.logger.WarnContext(ctx, "kafka message interrupted, leaving uncommitted",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			break
		}
		if err != nil {
			c.logger.ErrorContext(ctx, "kafka message handling failed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
		handled = append(handled, rec)
	}
	return handled
}

// FromRecord converts a franz-go record.
func FromRecord(rec *kgo.Record) *Message {
	msg := &Message{
		Topic:     rec.Topic,
		Key:       rec.Key,
		Value:     rec.Value,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

func (c *Consumer) Close() {
	c.client.Close()
}
