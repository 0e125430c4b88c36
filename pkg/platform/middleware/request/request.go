// Package request copies chi's request ID into requestcontext so services and
// log lines can correlate without depending on chi.
package request

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"ingressgw/pkg/requestcontext"
)

// RequestID must run after chi's middleware.RequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chimw.GetReqID(r.Context())
		if reqID == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(chimw.RequestIDHeader, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
