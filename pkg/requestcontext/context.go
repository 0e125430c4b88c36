// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; the audit service, forwarder and relay publisher read them
// without importing net/http concerns.
//
//	ctx = requestcontext.WithIdentity(ctx, identity)
//	identity, ok := requestcontext.IdentityFrom(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"strings"
	"time"
)

// RolesHeader is the header that carries Identity.RolesHeader() to downstream services.
const RolesHeader = "X-User-Roles"

// Identity is the caller identity established from a verified bearer token.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// RolesHeader renders the roles in the form downstream services expect.
func (i Identity) RolesHeader() string {
	return strings.Join(i.Roles, ",")
}

type (
	identityKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyIdentity    = identityKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// IdentityFrom returns the verified caller identity. ok is false for unauthenticated requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(Identity)
	return id, ok
}

// WithIdentity attaches a verified identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (relay worker, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
