package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/platform/middleware/metadata"
	"ingressgw/pkg/requestcontext"
)

// Counter is satisfied by the platform metrics.
type Counter interface {
	IncAuditRecords()
}

// Service builds audit records from the verified identity and appends them to the store.
type Service struct {
	store   Store
	metrics Counter
	logger  *slog.Logger
}

type Option func(*Service)

func WithMetrics(m Counter) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry for the request. The timestamp is the request-scoped time
// so the entry and downstream effects share a clock reading.
func (s *Service) Record(ctx context.Context, identity requestcontext.Identity, method, url string) (Record, error) {
	record := Record{
		ID:        uuid.NewString(),
		Timestamp: requestcontext.Now(ctx),
		Email:     identity.Email,
		Method:    method,
		URL:       url,
		Roles:     identity.Roles,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := s.store.Append(ctx, record); err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit record")
	}
	if s.metrics != nil {
		s.metrics.IncAuditRecords()
	}
	client := metadata.FromContext(ctx)
	s.logger.InfoContext(ctx, "audit",
		"line", record.Line(),
		"request_id", record.RequestID,
		"client_ip", client.IP,
		"user_agent", client.UserAgent,
	)
	return record, nil
}

// List returns the current audit log snapshot.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	records, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return records, nil
}
