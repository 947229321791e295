package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/httputil"
	"github.com/platinummonkey/turnstile/pkg/middleware"
)

// registeredPasskey is the public view of a newly stored credential
type registeredPasskey struct {
	ID         protocol.URLEncodedBase64 `json:"id"`
	DeviceType auth.DeviceType           `json:"deviceType"`
	BackedUp   bool                      `json:"backedUp"`
	Transports []string                  `json:"transports"`
}

// passkeyRegister handles POST /auth/passkey/register
func (h *AuthHandlers) passkeyRegister(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	creation, err := h.passkeys.BeginRegistration(r.Context(), authCtx.UserID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteOK(w, msgSuccess, creation.Response)
}

type registerVerifyRequest struct {
	AttestationResponse json.RawMessage `json:"attestationResponse"`
}

// passkeyRegisterVerify handles POST /auth/passkey/register-verify
func (h *AuthHandlers) passkeyRegisterVerify(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req registerVerifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	raw := httputil.RawField(req.AttestationResponse)
	if raw == nil {
		httputil.WriteError(w, r, apperror.Validation(apperror.FieldError{
			Path:    "attestationResponse",
			Message: "attestationResponse is required",
		}))
		return
	}

	cred, err := h.passkeys.FinishRegistration(r.Context(), authCtx.UserID, raw)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.invalidate(r.Context(), authCtx.UserID)

	transports := cred.Transports
	if transports == nil {
		transports = []string{}
	}
	httputil.WriteOK(w, msgSuccess, registeredPasskey{
		ID:         cred.ID,
		DeviceType: cred.DeviceType,
		BackedUp:   cred.BackedUp,
		Transports: transports,
	})
}

type passkeyLoginRequest struct {
	Email string `json:"email"`
}

// passkeyLogin handles POST /auth/passkey/login
func (h *AuthHandlers) passkeyLogin(w http.ResponseWriter, r *http.Request) {
	var req passkeyLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if err := h.validator.ValidateEmail(email); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	opts, err := h.passkeys.BeginLogin(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.cookies.setChallenge(w, opts.Challenge, h.passkeys.ChallengeTTL())
	httputil.WriteOK(w, msgSuccess, opts.Assertion.Response)
}

type loginVerifyRequest struct {
	AssertionResponse json.RawMessage `json:"assertionResponse"`
}

// passkeyLoginVerify handles POST /auth/passkey/login-verify.
// The challenge cookie is cleared whatever the outcome.
func (h *AuthHandlers) passkeyLoginVerify(w http.ResponseWriter, r *http.Request) {
	var presented string
	if cookie, err := r.Cookie(middleware.ChallengeCookie); err == nil {
		presented = cookie.Value
	}
	h.cookies.clear(w, middleware.ChallengeCookie, challengeCookiePath)

	var req loginVerifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	raw := httputil.RawField(req.AssertionResponse)
	if raw == nil {
		httputil.WriteError(w, r, apperror.Validation(apperror.FieldError{
			Path:    "assertionResponse",
			Message: "assertionResponse is required",
		}))
		return
	}

	result, err := h.passkeys.FinishLogin(r.Context(), presented, raw)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.startSession(w, r, result.User.ID, auth.SessionMethodPasskey); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteOK(w, msgSuccess, result.User.Public())
}
