package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKeyClient struct{}

// Client describes the caller as seen at the edge.
type Client struct {
	IP        string
	UserAgent string
}

// ClientMetadata stores the caller's address and User-Agent on the request context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClient(r.Context(), Client{
			IP:        ClientIPFromRequest(r),
			UserAgent: r.Header.Get("User-Agent"),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, contextKeyClient{}, c)
}

// FromContext returns the zero Client when the middleware did not run.
func FromContext(ctx context.Context) Client {
	c, _ := ctx.Value(contextKeyClient{}).(Client)
	return c
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
