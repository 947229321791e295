// Package httputil provides the response envelope, JSON request parsing and
// the generic middleware chain used by the HTTP gateway.
package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// Envelope is the uniform body of every gateway response
type Envelope struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data"`
	Errors    []apperror.FieldError `json:"errors"`
	Timestamp time.Time             `json:"timestamp"`
	Message   string                `json:"message"`
}

// now is replaced in tests
var now = func() time.Time { return time.Now().UTC() }

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope carrying data
func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, Envelope{
		Success:   true,
		Data:      data,
		Errors:    []apperror.FieldError{},
		Timestamp: now(),
		Message:   message,
	})
}

// WriteOK writes a 200 envelope
func WriteOK(w http.ResponseWriter, message string, data interface{}) error {
	return WriteSuccess(w, http.StatusOK, message, data)
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, message string, data interface{}) error {
	return WriteSuccess(w, http.StatusCreated, message, data)
}

// WriteFailure writes a failed envelope with the given field errors
func WriteFailure(w http.ResponseWriter, status int, message string, fields []apperror.FieldError) {
	if fields == nil {
		fields = []apperror.FieldError{}
	}
	WriteJSON(w, status, Envelope{
		Success:   false,
		Data:      nil,
		Errors:    fields,
		Timestamp: now(),
		Message:   message,
	})
}

// WriteError renders err at the HTTP boundary. Domain errors are rendered with
// their own status, message and field paths. Anything else is logged with the
// request context and rendered as an opaque 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperror.As(err); ok {
		if appErr.Err != nil {
			observability.FromContext(r.Context()).
				WithError(appErr.Err).
				WithField("kind", string(appErr.Kind)).
				Debug(appErr.Message)
		}
		WriteFailure(w, appErr.Status, appErr.Message, appErr.FieldErrors())
		return
	}

	observability.FromContext(r.Context()).
		WithError(err).
		WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).
		Error("unhandled error")
	WriteInternalError(w)
}

// WriteInternalError writes an opaque 500 envelope
func WriteInternalError(w http.ResponseWriter) {
	WriteFailure(w, http.StatusInternalServerError, "internal server error", nil)
}

// WriteUnauthorized writes a 401 envelope without a field path
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusUnauthorized, message, nil)
}

// WriteTooManyRequests writes a 429 envelope
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusTooManyRequests, message, nil)
}
