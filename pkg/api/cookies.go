package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/turnstile/pkg/middleware"
)

// Cookie paths. The refresh and challenge cookies are only sent to the
// endpoints that consume them.
const (
	accessCookiePath    = "/"
	refreshCookiePath   = "/auth/refresh"
	challengeCookiePath = "/auth/passkey"
)

type cookieConfig struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (c cookieConfig) set(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c cookieConfig) setAccess(w http.ResponseWriter, token string) {
	c.set(w, middleware.AccessCookie, token, accessCookiePath, c.accessTTL)
}

func (c cookieConfig) setRefresh(w http.ResponseWriter, token string) {
	c.set(w, middleware.RefreshCookie, token, refreshCookiePath, c.refreshTTL)
}

func (c cookieConfig) setChallenge(w http.ResponseWriter, challenge string, ttl time.Duration) {
	c.set(w, middleware.ChallengeCookie, challenge, challengeCookiePath, ttl)
}

// clear expires a cookie. path must match the one it was set with.
func (c cookieConfig) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
