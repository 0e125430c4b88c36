package admission

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"ingressgw/internal/ratelimit/metrics"
	"ingressgw/internal/ratelimit/models"
	"ingressgw/internal/ratelimit/store/window"
	dErrors "ingressgw/pkg/domain-errors"
)

type flakyStore struct {
	mu    sync.Mutex
	fail  bool
	inner *window.InMemoryStore
	calls int
}

func (f *flakyStore) Increment(ctx context.Context, key string, limit int, w time.Duration) (*models.AdmissionResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return f.inner.Increment(ctx, key, limit, w)
}

func (f *flakyStore) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

type rejectionCounter struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (r *rejectionCounter) IncRejection(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind]++
}

type AdmissionSuite struct {
	suite.Suite
	now        time.Time
	store      *window.InMemoryStore
	metrics    *metrics.Metrics
	rejections *rejectionCounter
	logger     *slog.Logger
}

func TestAdmissionSuite(t *testing.T) {
	suite.Run(t, new(AdmissionSuite))
}

func (s *AdmissionSuite) SetupTest() {
	s.now = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	s.store = window.NewInMemoryStore(window.WithClock(func() time.Time { return s.now }))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.rejections = &rejectionCounter{kinds: map[string]int{}}
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func (s *AdmissionSuite) newService(primary WindowStore, opts ...Option) *Service {
	opts = append([]Option{
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithRejectionRecorder(s.rejections),
	}, opts...)
	svc, err := New(primary, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *AdmissionSuite) TestDefaults() {
	svc := s.newService(s.store)
	ctx := context.Background()

	for range DefaultLimit {
		result, err := svc.TryAdmit(ctx)
		s.Require().NoError(err)
		s.True(result.Admitted)
	}

	result, err := svc.TryAdmit(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Require().NotNil(result)
	s.False(result.Admitted)
	s.Equal(DefaultLimit+1, result.Count)

	s.Equal(float64(DefaultLimit), testutil.ToFloat64(s.metrics.AdmissionDecisions.WithLabelValues("admitted")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AdmissionDecisions.WithLabelValues("rejected")))
	s.Equal(1, s.rejections.kinds["rate_limit_exceeded"])
}

func (s *AdmissionSuite) TestCustomLimitAndReset() {
	svc := s.newService(s.store, WithLimit(2), WithWindow(10*time.Second))
	ctx := context.Background()

	_, err := svc.TryAdmit(ctx)
	s.NoError(err)
	_, err = svc.TryAdmit(ctx)
	s.NoError(err)
	_, err = svc.TryAdmit(ctx)
	s.Error(err)

	s.now = s.now.Add(10 * time.Second)
	result, err := svc.TryAdmit(ctx)
	s.NoError(err)
	s.Equal(1, result.Count)
}

func (s *AdmissionSuite) TestConcurrentAdmissionsNeverExceedLimit() {
	svc := s.newService(s.store)
	ctx := context.Background()

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for range 150 {
		wg.Go(func() {
			if _, err := svc.TryAdmit(ctx); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	s.Equal(DefaultLimit, admitted)
}

func (s *AdmissionSuite) TestPrimaryFailureWithoutFallback() {
	primary := &flakyStore{fail: true, inner: s.store}
	svc := s.newService(primary)

	result, err := svc.TryAdmit(context.Background())
	s.Nil(result)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *AdmissionSuite) TestFallbackWhilePrimaryDown() {
	primary := &flakyStore{fail: true, inner: window.NewInMemoryStore()}
	svc := s.newService(primary, WithFallback(s.store))
	ctx := context.Background()

	for range 5 {
		result, err := svc.TryAdmit(ctx)
		s.Require().NoError(err)
		s.True(result.Degraded)
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AdmissionDegraded))

	primary.setFail(false)
	for range 3 {
		result, err := svc.TryAdmit(ctx)
		s.Require().NoError(err)
		s.False(result.Degraded)
	}
	s.Equal(0.0, testutil.ToFloat64(s.metrics.AdmissionDegraded))
}

func (s *AdmissionSuite) TestInvalidOptions() {
	_, err := New(nil)
	s.Error(err)
	_, err = New(s.store, WithLimit(0))
	s.Error(err)
	_, err = New(s.store, WithWindow(0))
	s.Error(err)
}

func (s *AdmissionSuite) TestRetryAfter() {
	svc := s.newService(s.store, WithLimit(1))
	result, err := svc.TryAdmit(context.Background())
	s.Require().NoError(err)
	s.Equal(DefaultWindow, result.RetryAfter(s.now))
	s.Equal(time.Duration(0), result.RetryAfter(s.now.Add(2*DefaultWindow)))
}
