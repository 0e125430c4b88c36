package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/requestcontext"
)

// EnqueueRecorder is satisfied by the platform metrics.
type EnqueueRecorder interface {
	IncEnqueued()
	IncRejection(kind string)
}

// Service accepts ingestion payloads onto the relay queue.
type Service struct {
	publisher Publisher
	key       string
	logger    *slog.Logger
	metrics   EnqueueRecorder
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m EnqueueRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// DefaultKey is the partition key every ingestion payload is queued under.
const DefaultKey = "Camel"

func NewService(publisher Publisher, key string, opts ...Option) (*Service, error) {
	if publisher == nil {
		return nil, errors.New("relay publisher is required")
	}
	if key == "" {
		key = DefaultKey
	}
	s := &Service{publisher: publisher, key: key, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enqueue publishes payload for delayed, rate-limited delivery. A successful return
// means the message is on the queue, not that it reached the sink.
func (s *Service) Enqueue(ctx context.Context, payload []byte, contentType string) (*Receipt, error) {
	msg := Message{
		ID:          uuid.NewString(),
		Key:         s.key,
		Payload:     payload,
		ContentType: contentType,
		EnqueuedAt:  requestcontext.Now(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	}
	if identity, ok := requestcontext.IdentityFrom(ctx); ok {
		msg.Email = identity.Email
		msg.Roles = identity.Roles
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "relay publish failed",
			"kind", string(dErrors.CodeQueueUnavailable),
			"message_id", msg.ID,
			"error", err,
			"request_id", msg.RequestID,
		)
		if s.metrics != nil {
			s.metrics.IncRejection(string(dErrors.CodeQueueUnavailable))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeQueueUnavailable, "relay queue unavailable")
	}

	if s.metrics != nil {
		s.metrics.IncEnqueued()
	}
	s.logger.InfoContext(ctx, "relay message enqueued",
		"message_id", msg.ID,
		"key", msg.Key,
		"bytes", len(payload),
		"request_id", msg.RequestID,
	)
	return &Receipt{MessageID: msg.ID, Key: msg.Key, EnqueuedAt: msg.EnqueuedAt}, nil
}
