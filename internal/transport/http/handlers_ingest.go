package httptransport

import (
	"errors"
	"io"
	"net/http"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/platform/httputil"
)

// handleIngest queues the body for delayed delivery to the sink and acknowledges
// with 202 once the queue has accepted it.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return
		}
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	receipt, err := h.relay.Enqueue(ctx, payload, contentType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, receipt)
}
