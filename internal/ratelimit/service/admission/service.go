package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ingressgw/internal/ratelimit/models"
	dErrors "ingressgw/pkg/domain-errors"
)

// WindowStore counts attempts against a fixed window.
type WindowStore interface {
	Increment(ctx context.Context, key string, limit int, window time.Duration) (*models.AdmissionResult, error)
}

// Metrics is satisfied by ratelimit/metrics.
type Metrics interface {
	ObserveDecision(admitted bool)
	SetDegraded(degraded bool)
}

// RejectionRecorder is satisfied by the platform metrics.
type RejectionRecorder interface {
	IncRejection(kind string)
}

// Service gates relayed writes against a single shared fixed window.
type Service struct {
	primary    WindowStore
	fallback   WindowStore
	breaker    *circuitBreaker
	limit      int
	window     time.Duration
	key        string
	logger     *slog.Logger
	metrics    Metrics
	rejections RejectionRecorder
}

type Option func(*Service)

func WithLimit(limit int) Option {
	return func(s *Service) { s.limit = limit }
}

func WithWindow(window time.Duration) Option {
	return func(s *Service) { s.window = window }
}

func WithKey(key string) Option {
	return func(s *Service) { s.key = key }
}

// WithFallback serves admission from fb while the primary store is failing.
func WithFallback(fb WindowStore) Option {
	return func(s *Service) { s.fallback = fb }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRejectionRecorder(r RejectionRecorder) Option {
	return func(s *Service) { s.rejections = r }
}

const (
	DefaultLimit  = 75
	DefaultWindow = time.Minute
)

func New(primary WindowStore, opts ...Option) (*Service, error) {
	if primary == nil {
		return nil, errors.New("window store is required")
	}
	s := &Service{
		primary: primary,
		breaker: newCircuitBreaker(5, 3),
		limit:   DefaultLimit,
		window:  DefaultWindow,
		key:     models.AdmissionKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limit <= 0 {
		return nil, errors.New("admission limit must be positive")
	}
	if s.window <= 0 {
		return nil, errors.New("admission window must be positive")
	}
	return s, nil
}

// TryAdmit counts one attempt. A rejected attempt returns the result together with a
// rate_limit_exceeded error so callers can branch on either.
func (s *Service) TryAdmit(ctx context.Context) (*models.AdmissionResult, error) {
	result, err := s.increment(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "admission check failed")
	}

	if s.metrics != nil {
		s.metrics.ObserveDecision(result.Admitted)
	}
	if result.Admitted {
		return result, nil
	}

	s.logger.WarnContext(ctx, "admission rejected",
		"kind", string(dErrors.CodeRateLimited),
		"count", result.Count,
		"limit", result.Limit,
		"reset_at", result.ResetAt,
	)
	if s.rejections != nil {
		s.rejections.IncRejection(string(dErrors.CodeRateLimited))
	}
	return result, dErrors.New(dErrors.CodeRateLimited, "write budget exhausted for the current window")
}

// increment always tries the primary store first, so a recovered primary takes over
// again on the next call. The breaker decides when the fallback counts as degraded mode.
func (s *Service) increment(ctx context.Context) (*models.AdmissionResult, error) {
	result, err := s.primary.Increment(ctx, s.key, s.limit, s.window)
	if err == nil {
		wasOpen := s.breaker.IsOpen()
		if s.breaker.RecordSuccess() && wasOpen {
			s.logger.InfoContext(ctx, "admission primary store recovered")
			s.setDegraded(false)
		}
		return result, nil
	}
	if s.fallback == nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "admission primary store failed, using fallback", "error", err)
	if s.breaker.RecordFailure() {
		s.setDegraded(true)
	}
	return s.fallbackIncrement(ctx)
}

func (s *Service) fallbackIncrement(ctx context.Context) (*models.AdmissionResult, error) {
	result, err := s.fallback.Increment(ctx, s.key, s.limit, s.window)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	return result, nil
}

func (s *Service) setDegraded(degraded bool) {
	if s.metrics != nil {
		s.metrics.SetDegraded(degraded)
	}
}
