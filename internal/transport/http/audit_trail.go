package httptransport

import (
	"net/http"

	"ingressgw/pkg/requestcontext"
)

// auditTrail runs after token verification. Downstream handlers see a copy of the
// request with any caller-supplied roles header removed; for verified callers the
// header is set from the token and one audit record is appended before the downstream
// handler runs. Unauthenticated requests pass through unrecorded.
func (h *Handler) auditTrail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out := r.Clone(ctx)
		out.Header.Del(requestcontext.RolesHeader)

		identity, ok := requestcontext.IdentityFrom(ctx)
		if !ok {
			next.ServeHTTP(w, out)
			return
		}

		out.Header.Set(requestcontext.RolesHeader, identity.RolesHeader())
		if _, err := h.audit.Record(ctx, identity, r.Method, requestURL(r)); err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, out)
	})
}

// requestURL reconstructs the absolute URL the caller addressed.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
