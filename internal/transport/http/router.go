package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ingressgw/internal/audit"
	"ingressgw/internal/forward"
	"ingressgw/internal/relay"
	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/platform/httputil"
	"ingressgw/pkg/platform/middleware/auth"
	"ingressgw/pkg/platform/middleware/metadata"
	request "ingressgw/pkg/platform/middleware/request"
	"ingressgw/pkg/platform/middleware/requesttime"
	"ingressgw/pkg/requestcontext"
)

// AuditService appends and lists audit records.
type AuditService interface {
	Record(ctx context.Context, identity requestcontext.Identity, method, url string) (audit.Record, error)
	List(ctx context.Context) ([]audit.Record, error)
}

// Enqueuer accepts ingestion payloads onto the relay queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte, contentType string) (*relay.Receipt, error)
}

// Forwarder relays a request to the upstream named by its Host header.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request) (*forward.Response, error)
}

// RejectionRecorder counts rejections by kind.
type RejectionRecorder interface {
	IncRejection(kind string)
}

// DefaultMaxBodyBytes caps inbound bodies on the ingest and forward routes.
const DefaultMaxBodyBytes = 1 << 20

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Verifier     auth.TokenVerifier
	Audit        AuditService
	Relay        Enqueuer
	Forwarder    Forwarder
	Rejections   RejectionRecorder
	Logger       *slog.Logger
	IngestPath   string
	MaxBodyBytes int64
}

// Handler is the thin HTTP layer. It delegates to services without embedding
// business logic so transport concerns remain isolated.
type Handler struct {
	audit        AuditService
	relay        Enqueuer
	forwarder    Forwarder
	rejections   RejectionRecorder
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewRouter builds the dispatch table:
//
//	POST <ingest path>  verify, audit, enqueue
//	GET  /audit-log     audit snapshot
//	GET  /*, POST /*    verify, audit, forward
//
// Anything else, including a known path with the wrong method, is a 404.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		audit:        d.Audit,
		relay:        d.Relay,
		forwarder:    d.Forwarder,
		rejections:   d.Rejections,
		logger:       logger,
		maxBodyBytes: d.MaxBodyBytes,
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	ingestPath := d.IngestPath
	if ingestPath == "" {
		ingestPath = "/temperature-measurements/v1/dummy"
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(request.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleNotFound)

	r.Get("/audit-log", h.handleAuditLog)

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(d.Verifier, d.Rejections, logger))
		r.Use(h.auditTrail)
		r.Post(ingestPath, h.handleIngest)
		r.Get("/*", h.handleForward)
		r.Post("/*", h.handleForward)
	})

	return r
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "no route",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", request.GetRequestID(r.Context()),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no route for "+r.Method+" "+r.URL.Path))
}

// writeError logs at a level matching the error's kind, counts it, and renders it.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	attrs := []any{
		"kind", string(code),
		"error", err,
		"request_id", request.GetRequestID(ctx),
	}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "request rejected", attrs...)
	}
	if h.rejections != nil && code != dErrors.CodeQueueUnavailable {
		// queue_unavailable is counted by the relay service itself
		h.rejections.IncRejection(string(code))
	}
	httputil.WriteError(w, err)
}
