package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorBody{Error: msg, Code: http.StatusText(status)})
}

// statusFor maps an error kind onto an HTTP status code.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindPermissionDenied:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindSlotUnavailable:
		return http.StatusConflict
	case apperrors.KindInsufficientPoints:
		return http.StatusPaymentRequired
	case apperrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders a classified engine error. Internal failures are
// logged and returned as opaque text.
func writeEngineError(w http.ResponseWriter, logger *logging.Logger, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	msg := kind.String()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Msg != "" {
		msg = appErr.Msg
	}
	switch kind {
	case apperrors.KindInternal:
		logger.Error("request failed", "error", err, "path", r.URL.Path)
		msg = "internal error"
	case apperrors.KindUnavailable:
		logger.Warn("backend unavailable", "error", err, "path", r.URL.Path)
	}
	writeJSON(w, status, errorBody{Error: msg, Code: kind.String()})
}
