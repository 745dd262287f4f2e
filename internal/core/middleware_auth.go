package core

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"emberwatch/internal/types"
)

// defaultSessionCookieName is used when the config does not override it.
const defaultSessionCookieName = "session_id"

// AuthMiddleware resolves the session cookie to an Actor.
//
// The middleware is lenient: requests without a cookie pass through
// unauthenticated, and route-level RequireAuth decides whether that is
// acceptable. A cookie that is present but invalid or expired is rejected
// with 401 so that clients clear stale sessions instead of silently browsing
// logged out.
//
// On success the Actor and the session's CSRF token are injected into the
// request context for downstream handlers and the CSRF middleware.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(s.sessionCookieName())
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, csrfToken, err := s.Authenticator.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid session")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		ctx = types.WithSessionCSRFToken(ctx, csrfToken)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth guards routes that need an authenticated Actor. Unauthenticated
// requests receive a 401 whose details carry the login redirect target, so
// clients can send the user to the sign-in page and return them afterwards.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); !ok {
			requestID := types.GetRequestID(r.Context())
			JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeAuthRequired),
					Message:   "authentication required",
					Details:   map[string]any{"redirect": r.URL.RequestURI()},
					RequestID: requestID,
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware validates the X-CSRF-Token header on mutating requests made
// by an authenticated Actor. Safe methods and unauthenticated requests pass
// through. Comparison is constant-time.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if _, ok := types.GetActor(r.Context()); !ok {
			next.ServeHTTP(w, r)
			return
		}

		expected, ok := types.GetSessionCSRFToken(r.Context())
		if !ok || expected == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-CSRF-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			s.Logger.Warn("csrf validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionCookieName() string {
	if s.Config != nil && s.Config.Auth.CookieName != "" {
		return s.Config.Auth.CookieName
	}
	return defaultSessionCookieName
}

// handleAuthError maps session resolution failures to distinct 401 codes.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("authentication failed: session expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "session has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: session invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid session")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}
