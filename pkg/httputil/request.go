package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/turnstile/pkg/apperror"
)

// DefaultMaxBodyBytes bounds JSON request bodies
const DefaultMaxBodyBytes = 1 << 20

// ParseJSON decodes JSON from the request body into dest. An empty body leaves
// dest untouched. Decoding failures are returned as validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, DefaultMaxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.Validation(apperror.FieldError{Path: "body", Message: "invalid JSON"}).Wrap(err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes the error envelope on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteError(w, r, err)
		return false
	}
	return true
}

// RawField returns a JSON member as raw bytes for parsers that consume the
// original encoding, or nil when it is absent or null.
func RawField(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
