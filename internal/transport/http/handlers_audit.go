package httptransport

import (
	"net/http"

	"ingressgw/internal/audit"
	"ingressgw/pkg/platform/httputil"
)

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	records, err := h.audit.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}
