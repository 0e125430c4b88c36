package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/platform/httputil"
	request "ingressgw/pkg/platform/middleware/request"
	"ingressgw/pkg/requestcontext"
)

const bearerPrefix = "Bearer "

// TokenVerifier is the pure verification step: token in, identity or AuthError out.
type TokenVerifier interface {
	Verify(tokenString string) (requestcontext.Identity, error)
}

// RejectionRecorder counts rejections by kind.
type RejectionRecorder interface {
	IncRejection(kind string)
}

// BearerToken extracts the token from the Authorization header. present is false only
// when the header is absent; a header without the Bearer prefix yields the raw value so
// verification rejects it.
func BearerToken(r *http.Request) (token string, present bool) {
	values := r.Header.Values("Authorization")
	if len(values) == 0 {
		return "", false
	}
	header := strings.TrimSpace(values[0])
	if after, ok := strings.CutPrefix(header, bearerPrefix); ok {
		return strings.TrimSpace(after), true
	}
	return header, true
}

// OptionalAuth verifies a bearer token when one is present. Requests without an
// Authorization header pass through unauthenticated. Invalid tokens are rejected with
// 401 before any downstream handler runs.
func OptionalAuth(verifier TokenVerifier, rejections RejectionRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, present := BearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					err = dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
				}
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"kind", string(dErrors.CodeUnauthorized),
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				if rejections != nil {
					rejections.IncRejection(string(dErrors.CodeUnauthorized))
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or malformed token"))
				return
			}

			ctx = requestcontext.WithIdentity(ctx, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
