//go:build integration

package relay_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingressgw/internal/platform/kafka/admin"
	"ingressgw/internal/platform/kafka/consumer"
	"ingressgw/internal/platform/kafka/producer"
	"ingressgw/internal/relay"
	"ingressgw/pkg/testutil/containers"
)

func TestKafkaQueue_RoundTripPreservesOrder(t *testing.T) {
	kafka := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	topic := "relay-" + uuid.NewString()

	prod, err := producer.New(producer.Config{Brokers: kafka.Brokers, ClientID: "it-producer"})
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.Health(ctx))
	require.NoError(t, admin.EnsureTopic(ctx, prod.Client(), topic, 1, 1))
	require.NoError(t, admin.EnsureTopic(ctx, prod.Client(), topic, 1, 1), "existing topic is not an error")

	cons, err := consumer.New(consumer.Config{
		Brokers: kafka.Brokers,
		Topics:  []string{topic},
		Group:   "it-" + uuid.NewString(),
	}, log)
	require.NoError(t, err)
	defer cons.Close()

	q := relay.NewKafkaQueue(topic, prod, cons, log)
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, q.Publish(ctx, relay.Message{
			ID:          id,
			Key:         relay.DefaultKey,
			Payload:     []byte(`{"id":"` + id + `"}`),
			ContentType: "application/json",
			Email:       "a@b.com",
			Roles:       []string{"admin"},
		}))
	}

	var (
		mu   sync.Mutex
		seen []relay.Message
	)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(runCtx, func(_ context.Context, msg relay.Message) error {
			mu.Lock()
			seen = append(seen, msg)
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 30*time.Second, 50*time.Millisecond)
	stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "m1", seen[0].ID)
	assert.Equal(t, "m2", seen[1].ID)
	assert.Equal(t, "m3", seen[2].ID)
	assert.Equal(t, []string{"admin"}, seen[0].Roles)
	assert.JSONEq(t, `{"id":"m1"}`, string(seen[0].Payload))
}

func TestKafkaQueue_InterruptedMessageIsRedelivered(t *testing.T) {
	kafka := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	topic := "relay-" + uuid.NewString()
	group := "it-" + uuid.NewString()

	prod, err := producer.New(producer.Config{Brokers: kafka.Brokers})
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, admin.EnsureTopic(ctx, prod.Client(), topic, 1, 1))

	newQueue := func() (*relay.KafkaQueue, *consumer.Consumer) {
		cons, err := consumer.New(consumer.Config{Brokers: kafka.Brokers, Topics: []string{topic}, Group: group}, log)
		require.NoError(t, err)
		return relay.NewKafkaQueue(topic, prod, cons, log), cons
	}

	first, firstCons := newQueue()
	require.NoError(t, first.Publish(ctx, relay.Message{ID: "m1", Key: relay.DefaultKey, Payload: []byte(`{}`)}))

	// the first worker is shut down while waiting out its delay
	entered := make(chan struct{})
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- first.Run(runCtx, func(ctx context.Context, _ relay.Message) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	select {
	case <-entered:
	case <-ctx.Done():
		t.Fatal("message was never consumed")
	}
	stop()
	<-done
	firstCons.Close()

	second, secondCons := newQueue()
	defer secondCons.Close()
	got := make(chan string, 1)
	runCtx, stop = context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = second.Run(runCtx, func(_ context.Context, msg relay.Message) error {
			select {
			case got <- msg.ID:
			default:
			}
			return nil
		})
	}()

	select {
	case id := <-got:
		assert.Equal(t, "m1", id)
	case <-time.After(30 * time.Second):
		t.Fatal("interrupted message was not redelivered")
	}
}
