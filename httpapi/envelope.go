package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/middleware"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("Malformed request body")

type fields map[string]any

type apiError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *API) ok(w http.ResponseWriter, extra fields) {
	body := fields{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) fail(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, fields{"success": false, "error": e})
}

// failErr maps an engine error to the envelope. Unknown errors are logged
// and reported as a backend failure without their text.
func (a *API) failErr(w http.ResponseWriter, r *http.Request, err error) {
	status, e := classify(err)
	if status >= 500 {
		a.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", portunus.RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
	a.fail(w, status, e)
}

func classify(err error) (int, apiError) {
	var verr *portunus.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusOK, apiError{Code: "validation_error", Message: "Invalid input.", Fields: verr.Fields}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, portunus.ErrMfaInvalidCode):
		return http.StatusOK, apiError{Code: "mfa_invalid_code", Message: portunus.ErrMfaInvalidCode.Error()}
	case errors.Is(err, portunus.ErrMfaInvalidToken):
		return http.StatusOK, apiError{Code: "mfa_invalid_token", Message: portunus.ErrMfaInvalidToken.Error()}
	case errors.Is(err, portunus.ErrMfaMethodNotFound):
		return http.StatusOK, apiError{Code: "mfa_method_not_found", Message: err.Error()}
	case errors.Is(err, portunus.ErrMfaMethodActive):
		return http.StatusOK, apiError{Code: "mfa_method_active", Message: err.Error()}
	case errors.Is(err, portunus.ErrMfaMethodInactive):
		return http.StatusOK, apiError{Code: "mfa_method_inactive", Message: err.Error()}
	case errors.Is(err, portunus.ErrAuthFailure):
		return http.StatusOK, apiError{Code: "auth_failure", Message: portunus.ErrAuthFailure.Error()}
	case errors.Is(err, portunus.ErrInvalidToken):
		return http.StatusOK, apiError{Code: "invalid_token", Message: portunus.ErrInvalidToken.Error()}
	case errors.Is(err, portunus.ErrAccountLockedOut):
		return http.StatusOK, apiError{Code: "account_locked_out", Message: err.Error()}
	case errors.Is(err, portunus.ErrLoginLockedOut):
		return http.StatusForbidden, apiError{Code: "login_locked_out", Message: err.Error()}
	case errors.Is(err, portunus.ErrPermissionDenied):
		return http.StatusForbidden, apiError{Code: "permission_denied", Message: err.Error()}
	case errors.Is(err, portunus.ErrRateLimited), errors.Is(err, middleware.ErrThrottled):
		return http.StatusTooManyRequests, apiError{Code: "rate_limited", Message: "Too many requests. Try again later."}
	case errors.Is(err, middleware.ErrCSRF):
		return http.StatusForbidden, apiError{Code: "csrf_failed", Message: err.Error()}
	case errors.Is(err, portunus.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: "Not found."}
	case errors.Is(err, portunus.ErrEngineNotReady):
		return http.StatusServiceUnavailable, apiError{Code: "unavailable", Message: "Service unavailable."}
	default:
		return http.StatusServiceUnavailable, apiError{Code: "backend_unavailable", Message: "Service temporarily unavailable."}
	}
}

// deny adapts middleware rejections to the envelope.
func (a *API) deny(w http.ResponseWriter, r *http.Request, status int, err error) {
	switch status {
	case http.StatusUnauthorized:
		a.fail(w, status, apiError{Code: "not_authenticated", Message: "Authentication credentials were not provided or are invalid."})
	case http.StatusMethodNotAllowed:
		a.fail(w, status, apiError{Code: "method_not_allowed", Message: "Method not allowed."})
	default:
		_, e := classify(err)
		a.fail(w, status, e)
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}
