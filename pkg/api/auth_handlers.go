package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/httputil"
	"github.com/platinummonkey/turnstile/pkg/middleware"
	"github.com/platinummonkey/turnstile/pkg/objectstore"
	"github.com/platinummonkey/turnstile/pkg/observability"
	"github.com/platinummonkey/turnstile/pkg/passkey"
	"github.com/platinummonkey/turnstile/pkg/presence"
	"github.com/platinummonkey/turnstile/pkg/storage"
	"github.com/platinummonkey/turnstile/pkg/validation"
)

// msgSuccess is the message of every successful envelope
const msgSuccess = "success"

// Attempt labels for password and refresh logins
const (
	attemptPassword = "password"
	attemptRefresh  = "refresh"
)

// UserStore is the persistence surface used by the gateway
type UserStore interface {
	Register(ctx context.Context, in storage.RegisterInput) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.User, error)
	UpdateProfile(ctx context.Context, id string, patch storage.ProfilePatch) (*auth.User, error)
	RecordSession(ctx context.Context, session *auth.Session) error
}

// AvatarUploader stores profile images and returns their public URL
type AvatarUploader interface {
	PutAvatar(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	store     UserStore
	tokens    *auth.TokenService
	sessions  *cache.SessionCache
	passkeys  *passkey.Ceremony
	validator *validation.Validator
	avatars   AvatarUploader
	limiter   middleware.Limiter
	clientIP  *auth.ClientIPResolver
	presence  *presence.Hub
	authMW    *middleware.AuthMiddleware
	metrics   *observability.Metrics
	logger    *observability.Logger
	cookies   cookieConfig
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(deps Dependencies) *AuthHandlers {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	validator := deps.Validator
	if validator == nil {
		validator = validation.NewValidator(nil)
	}

	return &AuthHandlers{
		store:     deps.Store,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		passkeys:  deps.Passkeys,
		validator: validator,
		avatars:   deps.Avatars,
		limiter:   deps.Limiter,
		clientIP:  deps.ClientIP,
		presence:  deps.Presence,
		authMW:    middleware.NewAuthMiddleware(deps.Tokens),
		metrics:   deps.Metrics,
		logger:    logger.WithField("component", "auth_handlers"),
		cookies: cookieConfig{
			secure:     deps.CookieSecure,
			accessTTL:  deps.Tokens.AccessTTL(),
			refreshTTL: deps.Tokens.RefreshTTL(),
		},
	}
}

// RegisterRoutes registers authentication routes under /auth
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/auth").Subrouter()
	if h.limiter != nil {
		r.Use(middleware.NewRateLimitMiddleware(h.limiter, h.clientIP, h.logger).Handler)
	}

	// Password sessions
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	// Profile
	r.Handle("/me", h.authMW.Handler(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	r.Handle("/me", h.authMW.Handler(http.HandlerFunc(h.updateProfile))).Methods(http.MethodPatch)
	r.Handle("/me/avatar", h.authMW.Handler(http.HandlerFunc(h.uploadAvatar))).Methods(http.MethodPost)

	// Passkeys
	r.Handle("/passkey/register", h.authMW.Handler(http.HandlerFunc(h.passkeyRegister))).Methods(http.MethodPost)
	r.Handle("/passkey/register-verify", h.authMW.Handler(http.HandlerFunc(h.passkeyRegisterVerify))).Methods(http.MethodPost)
	r.HandleFunc("/passkey/login", h.passkeyLogin).Methods(http.MethodPost)
	r.HandleFunc("/passkey/login-verify", h.passkeyLoginVerify).Methods(http.MethodPost)

	// Presence socket
	if h.presence != nil {
		r.Handle("/presence", h.authMW.Handler(h.presence.Handler())).Methods(http.MethodGet)
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.validator.ValidateRegistration(req.Email, req.FirstName, req.LastName, req.Password); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	user, err := h.store.Register(r.Context(), storage.RegisterInput{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.startSession(w, r, user.ID, auth.SessionMethodRegister); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("user_id", user.ID).Info("User registered")
	httputil.WriteCreated(w, msgSuccess, user.Public())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.validator.ValidateLogin(req.Email, req.Password); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	user, err := h.store.Login(r.Context(), req.Email, req.Password)
	h.metrics.RecordAuthAttempt(attemptPassword, err == nil)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.startSession(w, r, user.ID, auth.SessionMethodPassword); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteOK(w, msgSuccess, user.Public())
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	user, err := h.sessions.Get(r.Context(), authCtx.UserID)
	if apperror.IsNotFound(err) {
		httputil.WriteUnauthorized(w, middleware.MsgUnauthorized)
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteOK(w, msgSuccess, user)
}

type profileRequest struct {
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	ProfileImage *string `json:"profileImage"`
}

// updateProfile handles PATCH /auth/me
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	var req profileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.validator.ValidateProfile(req.FirstName, req.LastName, req.ProfileImage); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.writeProfileUpdate(w, r, authCtx.UserID, storage.ProfilePatch{
		FirstName:    trimmed(req.FirstName),
		LastName:     trimmed(req.LastName),
		ProfileImage: trimmed(req.ProfileImage),
	})
}

// uploadAvatar handles POST /auth/me/avatar
func (h *AuthHandlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	if h.avatars == nil {
		httputil.WriteError(w, r, apperror.NotFound("file", "object storage is disabled"))
		return
	}

	data, contentType, err := readAvatar(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	url, err := h.avatars.PutAvatar(r.Context(), authCtx.UserID, contentType, data)
	if errors.Is(err, objectstore.ErrUnsupportedType) {
		httputil.WriteError(w, r, apperror.Validation(apperror.FieldError{Path: "file", Message: err.Error()}))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.writeProfileUpdate(w, r, authCtx.UserID, storage.ProfilePatch{ProfileImage: &url})
}

// readAvatar extracts the multipart "file" part, bounded by MaxAvatarBytes
func readAvatar(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(objectstore.MaxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file is too large"})
		}
		return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file is required"}).Wrap(err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file is required"}).Wrap(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, objectstore.MaxAvatarBytes+1))
	if err != nil {
		return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file could not be read"}).Wrap(err)
	}
	if len(data) > objectstore.MaxAvatarBytes {
		return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file is too large"})
	}
	if len(data) == 0 {
		return nil, "", apperror.Validation(apperror.FieldError{Path: "file", Message: "file is empty"})
	}

	// The declared part type is ignored in favour of the sniffed one
	return data, http.DetectContentType(data), nil
}

// writeProfileUpdate applies patch, drops the cached projection and renders the result
func (h *AuthHandlers) writeProfileUpdate(w http.ResponseWriter, r *http.Request, userID string, patch storage.ProfilePatch) {
	user, err := h.store.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.invalidate(r.Context(), userID)
	httputil.WriteOK(w, msgSuccess, user.Public())
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshCookie)
	if err != nil || cookie.Value == "" {
		h.metrics.RecordAuthAttempt(attemptRefresh, false)
		httputil.WriteUnauthorized(w, middleware.MsgUnauthorized)
		return
	}

	result := h.tokens.VerifyRefresh(cookie.Value)
	if !result.Valid {
		h.metrics.RecordAuthAttempt(attemptRefresh, false)
		message := middleware.MsgUnauthorized
		if result.Expired {
			message = middleware.MsgSessionExpired
		}
		h.cookies.clear(w, middleware.RefreshCookie, refreshCookiePath)
		httputil.WriteUnauthorized(w, message)
		return
	}

	userID := result.Claims.ID
	user, err := h.sessions.Get(r.Context(), userID)
	if apperror.IsNotFound(err) {
		h.metrics.RecordAuthAttempt(attemptRefresh, false)
		httputil.WriteUnauthorized(w, middleware.MsgUnauthorized)
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	access, err := h.tokens.Issue(userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.RecordTokenIssued(middleware.AccessCookie)

	if err := h.recordSession(r, userID, auth.SessionMethodRefresh); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.metrics.RecordAuthAttempt(attemptRefresh, true)
	h.cookies.setAccess(w, access)
	httputil.WriteOK(w, msgSuccess, user)
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, middleware.AccessCookie, accessCookiePath)
	h.cookies.clear(w, middleware.RefreshCookie, refreshCookiePath)
	httputil.WriteOK(w, msgSuccess, nil)
}

// startSession records the audit session and sets the access and refresh cookies
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, userID string, method auth.SessionMethod) error {
	access, err := h.tokens.Issue(userID)
	if err != nil {
		return err
	}
	refresh, err := h.tokens.IssueRefresh(userID)
	if err != nil {
		return err
	}
	h.metrics.RecordTokenIssued(middleware.AccessCookie)
	h.metrics.RecordTokenIssued(middleware.RefreshCookie)

	if err := h.recordSession(r, userID, method); err != nil {
		return err
	}

	h.cookies.setAccess(w, access)
	h.cookies.setRefresh(w, refresh)
	return nil
}

func (h *AuthHandlers) recordSession(r *http.Request, userID string, method auth.SessionMethod) error {
	return h.store.RecordSession(r.Context(), auth.NewSessionFromRequest(r, h.clientIP.ClientIP(r), userID, method))
}

// invalidate drops the cached projection. Failures leave the entry to expire.
func (h *AuthHandlers) invalidate(ctx context.Context, userID string) {
	if err := h.sessions.Invalidate(ctx, userID); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("Failed to invalidate session cache")
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
