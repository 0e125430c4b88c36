package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"ingressgw/internal/audit"
	"ingressgw/internal/forward"
	jwttoken "ingressgw/internal/jwt_token"
	"ingressgw/internal/platform/config"
	"ingressgw/internal/platform/httpserver"
	"ingressgw/internal/platform/kafka/admin"
	"ingressgw/internal/platform/kafka/consumer"
	"ingressgw/internal/platform/kafka/producer"
	"ingressgw/internal/platform/logger"
	"ingressgw/internal/platform/metrics"
	redisplatform "ingressgw/internal/platform/redis"
	rlmetrics "ingressgw/internal/ratelimit/metrics"
	"ingressgw/internal/ratelimit/service/admission"
	"ingressgw/internal/ratelimit/store/window"
	"ingressgw/internal/relay"
	httptransport "ingressgw/internal/transport/http"
)

const shutdownGrace = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ingressgw:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting ingressgw",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"ingest_path", cfg.Server.IngestPath,
		"queue", a.queueKind,
		"admission_store", a.windowKind,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(cfg.Server.Addr, a.router), shutdownGrace, log)
	})
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(cfg.Server.MetricsAddr, a.metricsHandler), shutdownGrace, log)
	})
	g.Go(func() error {
		return a.worker.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("ingressgw stopped")
	return err
}

// app is the assembled process: the public router, the metrics endpoint, and the
// relay worker draining the queue.
type app struct {
	router         http.Handler
	metricsHandler http.Handler
	worker         *relay.Worker
	queue          relay.Queue
	queueKind      string
	windowKind     string
	closers        []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	keyMaterial, err := cfg.Auth.PublicKeyMaterial()
	if err != nil {
		return nil, err
	}
	publicKey, err := jwttoken.ParsePublicKey(keyMaterial)
	if err != nil {
		return nil, err
	}
	verifier := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(publicKey))

	m := metrics.New(reg)
	a.metricsHandler = metricsMux(reg)

	auditSvc := audit.NewService(audit.NewInMemoryStore(), audit.WithMetrics(m), audit.WithLogger(log))

	admitter, err := a.buildAdmission(ctx, cfg, log, m, rlmetrics.New(reg))
	if err != nil {
		return nil, err
	}

	if err := a.buildQueue(ctx, cfg, log); err != nil {
		return nil, err
	}

	relaySvc, err := relay.NewService(a.queue, cfg.Relay.Key, relay.WithLogger(log), relay.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	a.worker, err = relay.NewWorker(a.queue, admitter, relay.NewHTTPSink(cfg.Relay.SinkURL, cfg.Relay.SinkTimeout, nil),
		relay.WithDelay(cfg.Relay.Delay),
		relay.WithMaxAttempts(cfg.Relay.MaxAttempts),
		relay.WithBackoff(cfg.Relay.InitialBackoff, cfg.Relay.MaxBackoff),
		relay.WithWorkerLogger(log),
		relay.WithOutcomeRecorder(m),
	)
	if err != nil {
		return nil, err
	}

	fwd := forward.New(
		forward.WithScheme(cfg.Forward.Scheme),
		forward.WithTimeout(cfg.Forward.Timeout),
		forward.WithLogger(log),
		forward.WithMetrics(m),
	)

	a.router = httptransport.NewRouter(httptransport.Deps{
		Verifier:   verifier,
		Audit:      auditSvc,
		Relay:      relaySvc,
		Forwarder:  fwd,
		Rejections: m,
		Logger:     log,
		IngestPath: cfg.Server.IngestPath,
	})
	built = true
	return a, nil
}

// buildAdmission uses Redis when configured, with the in-memory window as fallback.
func (a *app) buildAdmission(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics, rl *rlmetrics.Metrics) (*admission.Service, error) {
	memory := window.NewInMemoryStore()
	opts := []admission.Option{
		admission.WithLimit(cfg.Admission.Limit),
		admission.WithWindow(cfg.Admission.Window),
		admission.WithLogger(log),
		admission.WithMetrics(rl),
		admission.WithRejectionRecorder(m),
	}

	client, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.windowKind = "memory"
		return admission.New(memory, opts...)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.windowKind = "redis"
	return admission.New(window.NewRedisStore(client.Client), append(opts, admission.WithFallback(memory))...)
}

// buildQueue uses Kafka when brokers are configured, otherwise an in-process queue.
func (a *app) buildQueue(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		q := relay.NewMemoryQueue(cfg.Relay.Buffer)
		a.queue, a.queueKind = q, "memory"
		a.closers = append(a.closers, func() { _ = q.Close() })
		return nil
	}

	prod, err := producer.New(producer.Config{
		Brokers:        cfg.Kafka.Brokers,
		ClientID:       "ingressgw-producer",
		ProduceTimeout: 10 * time.Second,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, prod.Close)

	if err := admin.EnsureTopic(ctx, prod.Client(), cfg.Kafka.Topic, -1, -1); err != nil {
		return err
	}

	cons, err := consumer.New(consumer.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topics:   []string{cfg.Kafka.Topic},
		Group:    cfg.Kafka.Group,
		ClientID: "ingressgw-consumer",
	}, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cons.Close)

	a.queue = relay.NewKafkaQueue(cfg.Kafka.Topic, prod, cons, log)
	a.queueKind = "kafka"
	return nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
