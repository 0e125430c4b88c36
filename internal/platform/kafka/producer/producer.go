package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"ingressgw/pkg/platform/sentinel"
)

// Config holds the producer connection settings.
type Config struct {
	Brokers  []string
	ClientID string
	// ProduceTimeout bounds each synchronous produce. Zero means the context deadline only.
	ProduceTimeout time.Duration
}

// Producer publishes records synchronously so callers learn about broker failures
// before acknowledging their own clients.
type Producer struct {
	client  *kgo.Client
	timeout time.Duration
}

// New connects a franz-go client. Records with the same key land on the same
// partition, which is what gives per-key ordering.
func New(cfg Config, opts ...kgo.Opt) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1 << 20),
	}
	if cfg.ClientID != "" {
		base = append(base, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Producer{client: client, timeout: cfg.ProduceTimeout}, nil
}

// Produce writes one record and waits for the broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if errors.Is(err, kgo.ErrClientClosed) {
			return fmt.Errorf("kafka produce: %w", sentinel.ErrClosed)
		}
		return fmt.Errorf("kafka produce: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

// Health pings the cluster.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Client exposes the underlying client, for topic administration.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

func (p *Producer) Close() {
	p.client.Close()
}
