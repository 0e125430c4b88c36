package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ingressgw/internal/platform/kafka/consumer"
	"ingressgw/pkg/platform/sentinel"
)

// RecordProducer is satisfied by kafka/producer.Producer.
type RecordProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// RecordConsumer is satisfied by kafka/consumer.Consumer.
type RecordConsumer interface {
	Run(ctx context.Context, handler consumer.Handler) error
}

// KafkaQueue stores messages on a Kafka topic. The record key is the message key, so
// Kafka's per-partition ordering gives per-key FIFO.
type KafkaQueue struct {
	topic    string
	producer RecordProducer
	consumer RecordConsumer
	router   *consumer.Router
	logger   *slog.Logger
	closers  []func()
}

func NewKafkaQueue(topic string, producer RecordProducer, cons RecordConsumer, logger *slog.Logger, closers ...func()) *KafkaQueue {
	return &KafkaQueue{
		topic:    topic,
		producer: producer,
		consumer: cons,
		router:   consumer.NewRouter(logger, nil),
		logger:   logger,
		closers:  closers,
	}
}

func (q *KafkaQueue) Publish(ctx context.Context, msg Message) error {
	if msg.Key == "" {
		return sentinel.ErrEmptyKey
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	headers := map[string]string{"message-id": msg.ID}
	if msg.ContentType != "" {
		headers["content-type"] = msg.ContentType
	}
	return q.producer.Produce(ctx, q.topic, []byte(msg.Key), value, headers)
}

func (q *KafkaQueue) Run(ctx context.Context, handle func(context.Context, Message) error) error {
	q.router.Register(q.topic, consumer.HandlerFunc(func(ctx context.Context, rec *consumer.Message) error {
		msg, err := DecodeRecord(rec)
		if err != nil {
			// poison record: commit past it
			q.logger.ErrorContext(ctx, "undecodable relay record",
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			return nil
		}
		return handle(ctx, msg)
	}))
	return q.consumer.Run(ctx, q.router)
}

// DecodeRecord rebuilds a Message from a consumed record.
func DecodeRecord(rec *consumer.Message) (Message, error) {
	var msg Message
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		return Message{}, fmt.Errorf("decode relay message: %w", err)
	}
	if msg.Key == "" {
		msg.Key = string(rec.Key)
	}
	return msg, nil
}

func (q *KafkaQueue) Close() error {
	for _, c := range q.closers {
		c()
	}
	return nil
}
