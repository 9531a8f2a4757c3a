// Package httputil maps domain errors onto HTTP responses so handlers stay
// thin and error translation lives in one place.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "tally/pkg/domain-errors"
)

// errorBody is the JSON error shape returned by every endpoint.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// statusFor maps a domain error code to an HTTP status.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeSignatureInvalid:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInsufficientFunds:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// opaque codes never include a description: internal details must not leak,
// and signature failures deliberately give an attacker nothing to work with.
func opaque(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation,
		dErrors.CodeUnavailable, dErrors.CodeSignatureInvalid:
		return true
	}
	return false
}

// WriteError writes err as a JSON error response with the appropriate status.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if !opaque(code) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.ErrorDescription = de.Message
		}
	}
	WriteJSON(w, statusFor(code), body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
