package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/platinummonkey/turnstile/pkg/httputil"
)

// BasicAuth guards a handler with a single username and password. With an
// empty username the handler is returned unguarded.
func BasicAuth(realm, username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if username == "" {
			return next
		}
		wantUser := sha256.Sum256([]byte(username))
		wantPass := sha256.Sum256([]byte(password))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			gotUser := sha256.Sum256([]byte(user))
			gotPass := sha256.Sum256([]byte(pass))

			userMatch := subtle.ConstantTimeCompare(gotUser[:], wantUser[:]) == 1
			passMatch := subtle.ConstantTimeCompare(gotPass[:], wantPass[:]) == 1
			if !ok || !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
				httputil.WriteUnauthorized(w, MsgUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
