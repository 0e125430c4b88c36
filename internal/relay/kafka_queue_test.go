package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingressgw/internal/platform/kafka/consumer"
)

type produced struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

// loopback feeds produced records straight back to the consumer side.
type loopback struct {
	records []produced
	err     error
}

func (l *loopback) Produce(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, produced{topic, key, value, headers})
	return nil
}

func (l *loopback) Run(ctx context.Context, handler consumer.Handler) error {
	for i, r := range l.records {
		if err := handler.Handle(ctx, &consumer.Message{Topic: r.topic, Key: r.key, Value: r.value, Offset: int64(i)}); err != nil {
			return err
		}
	}
	return nil
}

func TestKafkaQueue_RoundTrip(t *testing.T) {
	lb := &loopback{}
	closed := false
	q := NewKafkaQueue("weather-data-topic", lb, lb, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), func() { closed = true })

	enqueued := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, q.Publish(context.Background(), Message{
			ID: id, Key: "Camel", Payload: []byte(`{"v":1}`), ContentType: "application/json", EnqueuedAt: enqueued,
		}))
	}
	require.Len(t, lb.records, 2)
	assert.Equal(t, "weather-data-topic", lb.records[0].topic)
	assert.Equal(t, "Camel", string(lb.records[0].key))
	assert.Equal(t, "m1", lb.records[0].headers["message-id"])
	assert.Equal(t, "application/json", lb.records[0].headers["content-type"])

	var got []Message
	require.NoError(t, q.Run(context.Background(), func(_ context.Context, m Message) error {
		got = append(got, m)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, `{"v":1}`, string(got[0].Payload))
	assert.True(t, enqueued.Equal(got[0].EnqueuedAt))

	require.NoError(t, q.Close())
	assert.True(t, closed)
}

func TestKafkaQueue_PoisonRecordSkipped(t *testing.T) {
	lb := &loopback{records: []produced{
		{topic: "weather-data-topic", key: []byte("Camel"), value: []byte("not json")},
		{topic: "weather-data-topic", key: []byte("Camel"), value: []byte(`{"id":"m2","payload":"e30="}`)},
	}}
	q := NewKafkaQueue("weather-data-topic", lb, lb, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	var got []Message
	require.NoError(t, q.Run(context.Background(), func(_ context.Context, m Message) error {
		got = append(got, m)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "Camel", got[0].Key, "key falls back to the record key")
	assert.Equal(t, "{}", string(got[0].Payload))
}

func TestKafkaQueue_PublishErrors(t *testing.T) {
	lb := &loopback{err: errors.New("broker down")}
	q := NewKafkaQueue("t", lb, lb, slog.Default())

	assert.Error(t, q.Publish(context.Background(), Message{ID: "m1"}))
	assert.EqualError(t, q.Publish(context.Background(), Message{ID: "m1", Key: "Camel"}), "broker down")
}
