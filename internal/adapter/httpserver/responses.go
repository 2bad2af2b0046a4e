// Package httpserver contains HTTP handlers and middleware for the answer
// API: solving, entitlement grants, access reporting, and health.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrNoAccess):
		code = http.StatusPaymentRequired
		codeStr = "NO_ACCESS"
	case errors.Is(err, domain.ErrCooldown):
		code = http.StatusTooManyRequests
		codeStr = "COOLDOWN"
	case errors.Is(err, domain.ErrBusy):
		code = http.StatusConflict
		codeStr = "BUSY"
	case errors.Is(err, domain.ErrOverloaded):
		code = http.StatusTooManyRequests
		codeStr = "OVERLOADED"
	case errors.Is(err, domain.ErrImageRejected):
		code = http.StatusUnprocessableEntity
		codeStr = "IMAGE_REJECTED"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrUnresolvable):
		code = http.StatusServiceUnavailable
		codeStr = "UNRESOLVABLE"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrSchemaInvalid):
		code = http.StatusServiceUnavailable
		codeStr = "SCHEMA_INVALID"
	case errors.Is(err, domain.ErrStorage):
		code = http.StatusServiceUnavailable
		codeStr = "STORAGE"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
