package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/requestcontext"
)

// maxResponseBytes caps how much of an upstream body is buffered.
const maxResponseBytes = 10 << 20

// forwardedHeaders is the complete set of inbound headers copied to the upstream call.
var forwardedHeaders = []string{"Accept", "Content-Type", requestcontext.RolesHeader}

// Response is the upstream status with its body decoded as JSON.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// StatusRecorder is satisfied by the platform metrics.
type StatusRecorder interface {
	ObserveForward(status int)
}

// Forwarder relays a request to the host named by its own Host header.
type Forwarder struct {
	scheme  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	metrics StatusRecorder
	tracer  trace.Tracer
}

type Option func(*Forwarder)

func WithScheme(scheme string) Option {
	return func(f *Forwarder) { f.scheme = scheme }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) { f.timeout = d }
}

// WithClient replaces the HTTP client, e.g. to route test traffic.
func WithClient(c *http.Client) Option {
	return func(f *Forwarder) { f.client = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

func WithMetrics(m StatusRecorder) Option {
	return func(f *Forwarder) { f.metrics = m }
}

func New(opts ...Option) *Forwarder {
	f := &Forwarder{
		scheme:  "http",
		timeout: 30 * time.Second,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  slog.Default(),
		tracer:  otel.Tracer("ingressgw/forward"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Target builds scheme://host/path?query from the inbound request. The fragment is
// never part of an inbound request URL.
func (f *Forwarder) Target(r *http.Request) (*url.URL, error) {
	host := r.Host
	if host == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing Host header")
	}
	if strings.ContainsAny(host, "/?#@ ") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid Host header")
	}
	return &url.URL{
		Scheme:   f.scheme,
		Host:     host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}, nil
}

// Forward performs the upstream call with the same method and body. Only Accept,
// Content-Type and the roles header are copied; the router is responsible for setting
// the roles header from the verified identity and stripping any inbound copy. The call
// is bounded by the configured timeout and by the inbound request's context.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request) (*Response, error) {
	target, err := f.Target(r)
	if err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "forward "+r.Method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("server.address", target.Host),
			attribute.String("url.path", target.Path),
		))
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, f.fail(span, dErrors.Wrap(err, dErrors.CodeBadRequest, "read request body"))
		}
		body = bytes.NewReader(raw)
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, f.fail(span, dErrors.Wrap(err, dErrors.CodeBadRequest, "build upstream request"))
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}

	resp, err := f.client.Do(out)
	if err != nil {
		msg := "upstream unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "upstream timed out"
		}
		return nil, f.fail(span, dErrors.Wrap(err, dErrors.CodeUpstream, msg))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if f.metrics != nil {
		f.metrics.ObserveForward(resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, f.fail(span, dErrors.Wrap(err, dErrors.CodeUpstream, "read upstream response"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, f.fail(span, dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("upstream responded %d", resp.StatusCode)))
	}

	decoded, err := decodeJSON(raw)
	if err != nil {
		return nil, f.fail(span, dErrors.Wrap(err, dErrors.CodeUpstream, "upstream response is not JSON"))
	}

	f.logger.InfoContext(ctx, "request forwarded",
		"method", r.Method,
		"target", target.String(),
		"status", resp.StatusCode,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Response{StatusCode: resp.StatusCode, Body: decoded}, nil
}

func (f *Forwarder) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

// decodeJSON validates raw as a single JSON value and returns it compacted. An empty
// body decodes to null.
func decodeJSON(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
