package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "ingressgw/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal errors
// never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	desc := ""
	if de, ok := dErrors.Is(err); ok {
		code = de.Code
		desc = de.Message
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal && desc != "" {
		body["error_description"] = desc
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
