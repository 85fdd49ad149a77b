package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/execctx"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

// Stable error kinds surfaced on the native endpoints.
const (
	errInvalidRequest = "invalid_request_error"
	errNotReady       = "not_ready_error"
	errUpstream       = "upstream_error"
	errInternal       = "internal_error"
)

// writeError emits the native structured error payload.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Error: types.ErrorBody{Message: msg, Type: kind},
	})
}

// writeOllamaError emits Ollama's flat error shape.
func writeOllamaError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.OllamaError{Error: msg})
}

// proxyErrorStatus maps a failed proxy call onto a status and error kind.
// A context that is not Ready yields 503; a connection-level failure
// against the subprocess yields 502; anything else is internal.
func proxyErrorStatus(err error) (int, string) {
	switch {
	case execctx.IsNotReady(err):
		return http.StatusServiceUnavailable, errNotReady
	case supervisor.IsProxyConnection(err):
		return http.StatusBadGateway, errUpstream
	default:
		return http.StatusInternalServerError, errInternal
	}
}

// writeProxyError reports a failed proxy call on the native surface.
func writeProxyError(w http.ResponseWriter, err error) {
	status, kind := proxyErrorStatus(err)
	writeError(w, status, kind, err.Error())
}
