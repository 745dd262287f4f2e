// Package handlers contains the HTTP handler implementations for the EmberWatch API.
//
// Each handler is responsible for:
//   - Decoding and validating HTTP requests
//   - Delegating to service-layer logic
//   - Encoding responses and managing HTTP-specific concerns (headers, cookies)
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"emberwatch/internal/auth"
	"emberwatch/internal/core"
	"emberwatch/internal/types"
)

// --- DTOs ---

// SignupRequest is the request body for POST /auth/signup.
type SignupRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Name            string `json:"name" validate:"max=100"`
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// LoginRequest is the request body for POST /auth/login. Redirect is an
// optional in-app path to return to after authentication; it is validated
// and echoed back, never followed server-side.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Redirect string `json:"redirect" validate:"max=2048"`
}

// AuthResponse is the success payload for login. The session token travels
// ONLY via the HttpOnly Set-Cookie header and is never present in the body.
type AuthResponse struct {
	CSRFToken string      `json:"csrf_token"`
	User      *types.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
	Redirect  string      `json:"redirect,omitempty"`
}

// ForgotPasswordRequest is the request body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the request body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// ResendConfirmationRequest is the request body for POST /auth/resend-confirmation.
type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UpdateProfileRequest is the request body for PATCH /auth/profile. Email is
// immutable after signup; only the display name can change.
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// PasswordCheckRequest is the request body for POST /auth/password-check.
type PasswordCheckRequest struct {
	Password string `json:"password"`
}

// --- Service Interfaces ---
//
// These interfaces allow the handler to depend on abstractions rather than
// concrete service implementations, enabling testability via mocks.

// AuthService orchestrates credential validation and account lifecycle flows.
type AuthService interface {
	// Signup registers a pending account and returns the raw confirmation token.
	Signup(ctx context.Context, email, password, name string) (*types.User, string, error)

	// ConfirmEmail consumes a redirect token for the given flow. For the signup
	// flow it activates the account; for the recovery flow it only validates
	// the reset token.
	ConfirmEmail(ctx context.Context, rawToken string, flow types.ConfirmFlow) (*types.User, error)

	// ResendConfirmation re-issues a confirmation token for a pending account.
	ResendConfirmation(ctx context.Context, email string) (string, error)

	// Login verifies credentials and returns the user, session, and raw
	// session token to place in the cookie.
	Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)

	// Logout invalidates the session identified by the raw cookie token.
	Logout(ctx context.Context, rawToken string) error

	// RequestPasswordReset initiates a password reset flow.
	RequestPasswordReset(ctx context.Context, email string) (string, error)

	// CompletePasswordReset validates the reset token and sets the new password.
	CompletePasswordReset(ctx context.Context, rawToken, newPassword string) error

	// UpdateProfile changes the user's display name.
	UpdateProfile(ctx context.Context, userID, name string) (*types.User, error)
}

// --- Cookie Configuration ---

// CookieConfig defines security attributes for session cookies.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
	MaxAge   int // seconds
	Path     string
}

// DefaultCookieConfig returns the default cookie configuration:
// HttpOnly, Secure, SameSite=Lax, 7-day lifetime.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     "session_id",
		Domain:   "",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   604800, // 7 days
		Path:     "/",
	}
}

// --- Handler ---

// AuthHandler maps HTTP requests to the auth service layer and handles
// cookie/header management and confirmation redirects.
type AuthHandler struct {
	authService  AuthService
	cookieConfig CookieConfig
	appURL       string
	requireAuth  func(http.Handler) http.Handler
	logger       *slog.Logger
	validator    *core.Validator
}

// NewAuthHandler creates a new AuthHandler with the provided dependencies.
// appURL is the public base URL of the web front-end, used as the target of
// confirmation redirects.
func NewAuthHandler(
	authSvc AuthService,
	cfg CookieConfig,
	appURL string,
	requireAuth func(http.Handler) http.Handler,
	l *slog.Logger,
	v *core.Validator,
) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	if requireAuth == nil {
		requireAuth = func(next http.Handler) http.Handler { return next }
	}
	return &AuthHandler{
		authService:  authSvc,
		cookieConfig: cfg,
		appURL:       strings.TrimRight(appURL, "/"),
		requireAuth:  requireAuth,
		logger:       l,
		validator:    v,
	}
}

// RegisterRoutes mounts all auth routes onto the provided router.
//
// Public routes (no session required):
//   - POST /signup              - Account registration
//   - GET  /confirm             - Redirect-token processing (signup + recovery)
//   - POST /resend-confirmation - Re-issue confirmation email
//   - POST /login               - Credential login
//   - POST /forgot-password     - Initiate password reset
//   - POST /reset-password      - Complete password reset
//   - POST /password-check      - Stateless password strength flags
//
// Protected routes (requires valid session):
//   - POST  /logout  - Session logout
//   - PATCH /profile - Display name update
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	// Public routes
	r.Group(func(r chi.Router) {
		r.Post("/signup", h.HandleSignup)
		r.Get("/confirm", h.HandleConfirm)
		r.Post("/resend-confirmation", h.HandleResendConfirmation)
		r.Post("/login", h.HandleLogin)
		r.Post("/forgot-password", h.HandleForgotPassword)
		r.Post("/reset-password", h.HandleResetPassword)
		r.Post("/password-check", h.HandlePasswordCheck)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.HandleLogout)
		r.Patch("/profile", h.HandleUpdateProfile)
	})
}

// --- Handler Methods ---

// HandleSignup processes POST /auth/signup requests.
//
//  1. Decode and validate the SignupRequest.
//  2. Reject mismatched password confirmation before touching the service.
//  3. Call AuthService.Signup; weak passwords come back with the per-rule
//     flags in the error details so the client can render the checklist.
//  4. Return 201 with the pending user. The confirmation link is delivered
//     out of band; it is never present in the response body.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Password != req.ConfirmPassword {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationPasswordMismatch,
			"Passwords do not match.",
			nil,
		))
		return
	}

	email := auth.CanonicalizeEmail(req.Email)

	user, confirmToken, err := h.authService.Signup(r.Context(), email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	// The mail sender is not part of this service; the confirmation link is
	// handed to the operator via the log until delivery is wired up.
	h.logger.Info("confirmation link issued",
		"user_id", user.ID,
		"confirm_url", h.confirmURL(confirmToken, types.ConfirmFlowSignup),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: map[string]any{
			"user":    user,
			"message": "Account created. Check your email to confirm your address.",
		},
	})
}

// HandleConfirm processes GET /auth/confirm requests.
//
// Incoming confirmation links carry three query parameters: token (the raw
// redirect token), type (signup or recovery), and an optional redirect (an
// in-app path to land on afterwards). On success the browser is redirected
// into the front-end; failures redirect to the sign-in page with an error
// code so the UI can explain what happened.
func (h *AuthHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	token := q.Get("token")
	flow := types.ConfirmFlow(q.Get("type"))
	if flow == "" {
		flow = types.ConfirmFlowSignup
	}

	if token == "" {
		h.redirectWithError(w, r, "/sign-in", "missing_token")
		return
	}
	if flow != types.ConfirmFlowSignup && flow != types.ConfirmFlowRecovery {
		h.redirectWithError(w, r, "/sign-in", "invalid_flow")
		return
	}

	_, err := h.authService.ConfirmEmail(r.Context(), token, flow)
	if err != nil {
		h.logger.Warn("confirmation token rejected", "flow", flow, "error", err)
		h.redirectWithError(w, r, "/sign-in", confirmErrorCode(err))
		return
	}

	switch flow {
	case types.ConfirmFlowRecovery:
		// The reset form needs the validated token to complete the flow.
		target := h.appURL + "/reset-password?token=" + url.QueryEscape(token)
		http.Redirect(w, r, target, http.StatusSeeOther)
	default:
		target := h.appURL + safeRedirectPath(q.Get("redirect"), "/sign-in") + "?confirmed=true"
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// HandleResendConfirmation processes POST /auth/resend-confirmation requests.
//
// Enumeration protection: the response is identical whether or not the email
// belongs to a pending account.
func (h *AuthHandler) HandleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req ResendConfirmationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	email := auth.CanonicalizeEmail(req.Email)

	token, err := h.authService.ResendConfirmation(r.Context(), email)
	if err != nil {
		h.logger.Warn("resend confirmation failed", "error", err)
	} else if token != "" {
		h.logger.Info("confirmation link re-issued",
			"confirm_url", h.confirmURL(token, types.ConfirmFlowSignup),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{
			"message": "If a pending account exists with that email, a new confirmation link has been sent.",
		},
	})
}

// HandleLogin processes POST /auth/login requests.
//
//  1. Decode and validate the LoginRequest.
//  2. Canonicalize the email.
//  3. Extract client IP for security tracking.
//  4. Call AuthService.Login.
//  5. On success: set the HttpOnly session cookie and return AuthResponse,
//     echoing a validated redirect path for the client to navigate to.
//  6. On failure: map the error to an appropriate HTTP status.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	email := auth.CanonicalizeEmail(req.Email)
	ip := extractClientIP(r)

	user, session, rawToken, err := h.authService.Login(r.Context(), email, req.Password, ip, r.UserAgent())
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	// Session token travels ONLY via the cookie.
	h.setSessionCookie(w, rawToken)

	resp := AuthResponse{
		CSRFToken: session.CSRFToken,
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}
	if req.Redirect != "" {
		resp.Redirect = safeRedirectPath(req.Redirect, "/")
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleLogout processes POST /auth/logout requests.
//
//  1. Extract the raw session token from the cookie.
//  2. Invalidate the session (hard delete).
//  3. Clear the client cookie (Max-Age=0, Expires=epoch).
//  4. Return 200 OK.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	rawToken := h.extractSessionTokenFromCookie(r)
	if rawToken == "" {
		// No session cookie present; nothing to invalidate.
		// Still clear any residual cookie and return success.
		h.clearSessionCookie(w)
		core.JSON(w, r, http.StatusOK, core.APIResponse{
			Data: map[string]string{"message": "logged out"},
		})
		return
	}

	if err := h.authService.Logout(r.Context(), rawToken); err != nil {
		h.logger.Warn("failed to invalidate session during logout", "error", err)
		// Continue with cookie clearing even if DB invalidation fails.
		// The session will expire naturally or be swept by cleanup.
	}

	h.clearSessionCookie(w)

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{"message": "logged out"},
	})
}

// HandleForgotPassword processes POST /auth/forgot-password requests.
//
// Enumeration protection: always returns a generic success message regardless
// of whether the email exists.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	email := auth.CanonicalizeEmail(req.Email)

	// Errors are intentionally swallowed to prevent enumeration.
	token, err := h.authService.RequestPasswordReset(r.Context(), email)
	if err != nil {
		h.logger.Warn("password reset request failed", "error", err)
	} else if token != "" {
		h.logger.Info("password reset link issued",
			"reset_url", h.confirmURL(token, types.ConfirmFlowRecovery),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{
			"message": "If an account exists with that email, a password reset link has been sent.",
		},
	})
}

// HandleResetPassword processes POST /auth/reset-password requests.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationPasswordMismatch,
			"Passwords do not match.",
			nil,
		))
		return
	}

	if err := h.authService.CompletePasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{
			"message": "Password has been reset successfully.",
		},
	})
}

// HandlePasswordCheck processes POST /auth/password-check requests.
//
// Stateless: returns the per-rule strength flags for the submitted password
// so the signup form can render a live checklist. Nothing is persisted.
func (h *AuthHandler) HandlePasswordCheck(w http.ResponseWriter, r *http.Request) {
	var req PasswordCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	check := auth.CheckPassword(req.Password)

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]any{
			"check": check,
			"valid": check.Valid(),
		},
	})
}

// HandleUpdateProfile processes PATCH /auth/profile requests.
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthRequired,
			"authentication required",
			nil,
		))
		return
	}

	var req UpdateProfileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), actor.UserID, strings.TrimSpace(req.Name))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// --- Cookie Helpers ---

// setSessionCookie writes the session cookie to the response. The raw token
// is only ever exposed here; the server stores a hash.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, rawToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieConfig.Name,
		Value:    rawToken,
		MaxAge:   h.cookieConfig.MaxAge,
		Path:     h.cookieConfig.Path,
		Domain:   h.cookieConfig.Domain,
		Secure:   h.cookieConfig.Secure,
		HttpOnly: h.cookieConfig.HttpOnly,
		SameSite: h.cookieConfig.SameSite,
	})
}

// clearSessionCookie writes a cookie with Max-Age<0 and Expires=epoch to force
// immediate browser deletion of the session cookie.
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieConfig.Name,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		Path:     h.cookieConfig.Path,
		Domain:   h.cookieConfig.Domain,
		Secure:   h.cookieConfig.Secure,
		HttpOnly: h.cookieConfig.HttpOnly,
		SameSite: h.cookieConfig.SameSite,
	})
}

// extractSessionTokenFromCookie reads the raw session token from the request cookie.
func (h *AuthHandler) extractSessionTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.cookieConfig.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// --- Redirect Helpers ---

// confirmURL builds the emailed confirmation link for a raw token.
func (h *AuthHandler) confirmURL(token string, flow types.ConfirmFlow) string {
	return h.appURL + "/auth/confirm?token=" + url.QueryEscape(token) + "&type=" + string(flow)
}

// redirectWithError sends the browser to an in-app page with an error code
// query parameter the UI can translate into a message.
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, path, code string) {
	http.Redirect(w, r, h.appURL+path+"?error="+url.QueryEscape(code), http.StatusSeeOther)
}

// safeRedirectPath confines a client-supplied redirect to an in-app absolute
// path. Anything carrying a scheme, host, or protocol-relative prefix falls
// back to the provided default, closing the open-redirect hole.
func safeRedirectPath(redirect, fallback string) string {
	if redirect == "" {
		return fallback
	}
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		return fallback
	}
	if strings.Contains(redirect, "\\") || strings.Contains(redirect, "://") {
		return fallback
	}
	return redirect
}

// confirmErrorCode translates a confirmation failure into a UI-facing code.
func confirmErrorCode(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			return "token_expired"
		case types.ErrCodeAuthTokenInvalid:
			return "token_invalid"
		}
	}
	return "confirmation_failed"
}

// --- Error Handling ---

// handleAuthError maps internal auth errors to user-facing responses:
//
//	ErrCodeAuthLocked           -> 429 "Too many failed attempts. Try again later."
//	ErrCodeAuthInvalidCreds     -> 401 "Invalid email or password."
//	ErrCodeAuthUserNotFound     -> 401 "Invalid email or password." (masked)
//	ErrCodeAuthEmailNotVerified -> 403 "Email address not confirmed."
//
// Weak-password errors pass through unchanged so the per-rule flags in their
// details reach the client.
func (h *AuthHandler) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		core.Error(w, r, err)
		return
	}

	switch appErr.Code {
	case types.ErrCodeAuthLocked:
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthLocked,
			"Too many failed attempts. Try again later.",
			nil,
		))
	case types.ErrCodeAuthInvalidCreds, types.ErrCodeAuthUserNotFound:
		// Both map to 401 with a generic message for enumeration protection.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthInvalidCreds,
			"Invalid email or password.",
			nil,
		))
	case types.ErrCodeAuthEmailNotVerified:
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthEmailNotVerified,
			"Email address not confirmed. Check your inbox for the confirmation link.",
			nil,
		))
	default:
		core.Error(w, r, err)
	}
}

// --- Utility ---

// extractClientIP extracts the client IP from the request.
// It checks X-Forwarded-For first (for requests behind a proxy/ALB),
// then falls back to RemoteAddr.
func extractClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: client, proxy1, proxy2.
	// The first entry is the original client IP.
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
