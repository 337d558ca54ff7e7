package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"infera/internal/manager"
	"infera/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps a service error to an HTTP status and the error kind echoed to clients.
func statusFor(err error) (int, string) {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ""
	}
	kind := manager.KindOf(err)
	switch kind {
	case manager.KindNotFound:
		return http.StatusNotFound, string(kind)
	case manager.KindInvalidInput, manager.KindShapeMismatch:
		return http.StatusBadRequest, string(kind)
	case manager.KindParseError:
		return http.StatusUnprocessableEntity, string(kind)
	case manager.KindIOError:
		return http.StatusBadGateway, string(kind)
	case manager.KindBackend:
		return http.StatusInternalServerError, string(kind)
	}
	return http.StatusInternalServerError, string(kind)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSONError(w, status, kind, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	if kind != "" || status >= 500 {
		httpErrorsTotal.WithLabelValues(kindLabel(kind)).Inc()
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func kindLabel(kind string) string {
	if kind == "" {
		return "internal"
	}
	return kind
}
