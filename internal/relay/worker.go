package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ingressgw/internal/ratelimit/models"
	dErrors "ingressgw/pkg/domain-errors"
)

// Admitter is satisfied by the admission service.
type Admitter interface {
	TryAdmit(ctx context.Context) (*models.AdmissionResult, error)
}

// Sink is the final destination of relayed payloads.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// OutcomeRecorder is satisfied by the platform metrics.
type OutcomeRecorder interface {
	IncRelayOutcome(outcome string)
}

// Outcome labels.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// Worker drains the relay queue: for each message it waits the fixed delay, asks for
// admission, then writes to the sink with bounded retries. A message that is dropped
// or exhausts its retries is reported and the worker moves on to the next one.
type Worker struct {
	consumer       Consumer
	admitter       Admitter
	sink           Sink
	delay          time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
	metrics        OutcomeRecorder
	tracer         trace.Tracer
	wait           func(ctx context.Context, d time.Duration) error
}

type WorkerOption func(*Worker)

func WithDelay(d time.Duration) WorkerOption {
	return func(w *Worker) { w.delay = d }
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) { w.maxAttempts = n }
}

func WithBackoff(initial, maximum time.Duration) WorkerOption {
	return func(w *Worker) {
		w.initialBackoff = initial
		w.maxBackoff = maximum
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WithOutcomeRecorder(m OutcomeRecorder) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWait replaces the delay timer, for tests.
func WithWait(wait func(ctx context.Context, d time.Duration) error) WorkerOption {
	return func(w *Worker) { w.wait = wait }
}

func NewWorker(consumer Consumer, admitter Admitter, sink Sink, opts ...WorkerOption) (*Worker, error) {
	if consumer == nil {
		return nil, errors.New("relay consumer is required")
	}
	if admitter == nil {
		return nil, errors.New("admitter is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	w := &Worker{
		consumer:       consumer,
		admitter:       admitter,
		sink:           sink,
		delay:          5 * time.Second,
		maxAttempts:    5,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		logger:         slog.Default(),
		tracer:         otel.Tracer("ingressgw/relay"),
		wait:           sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxAttempts < 1 {
		w.maxAttempts = 1
	}
	return w, nil
}

// Run consumes until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "relay worker started",
		"delay", w.delay,
		"max_attempts", w.maxAttempts,
	)
	err := w.consumer.Run(ctx, w.Handle)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.logger.Info("relay worker stopped")
	return err
}

// Handle processes one message. It returns nil when the message was delivered or
// dropped by policy, ctx.Err() when interrupted, and the last sink error when
// delivery failed.
func (w *Worker) Handle(ctx context.Context, msg Message) error {
	ctx, span := w.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("relay.message_id", msg.ID),
		attribute.String("relay.key", msg.Key),
	))
	defer span.End()

	log := w.logger.With("message_id", msg.ID, "key", msg.Key, "request_id", msg.RequestID)

	if err := w.wait(ctx, w.delay); err != nil {
		span.SetStatus(codes.Error, "interrupted")
		return err
	}

	if _, err := w.admitter.TryAdmit(ctx); err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			log.WarnContext(ctx, "relay message dropped by policy", "kind", string(dErrors.CodeRateLimited))
			span.SetAttributes(attribute.String("relay.outcome", OutcomeDropped))
			w.record(OutcomeDropped)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.ErrorContext(ctx, "relay admission failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
		w.record(OutcomeFailed)
		return err
	}

	attempts, err := w.deliver(ctx, msg, log)
	span.SetAttributes(attribute.Int("relay.attempts", attempts))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.ErrorContext(ctx, "relay delivery failed",
			"kind", string(dErrors.CodeOf(err)),
			"attempts", attempts,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		span.SetAttributes(attribute.String("relay.outcome", OutcomeFailed))
		w.record(OutcomeFailed)
		return err
	}

	log.InfoContext(ctx, "relay message delivered",
		"attempts", attempts,
		"latency", time.Since(msg.EnqueuedAt),
	)
	span.SetAttributes(attribute.String("relay.outcome", OutcomeDelivered))
	w.record(OutcomeDelivered)
	return nil
}

func (w *Worker) deliver(ctx context.Context, msg Message, log *slog.Logger) (int, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.initialBackoff
	exp.MaxInterval = w.maxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(w.maxAttempts-1)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return w.sink.Deliver(ctx, msg)
	}, policy, func(err error, next time.Duration) {
		log.WarnContext(ctx, "relay delivery attempt failed, retrying",
			"attempt", attempts,
			"next_in", next,
			"error", err,
		)
	})
	return attempts, err
}

func (w *Worker) record(outcome string) {
	if w.metrics != nil {
		w.metrics.IncRelayOutcome(outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
