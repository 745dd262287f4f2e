package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"emberwatch/internal/core"
	"emberwatch/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// mockAuthService implements the AuthService interface for testing.
type mockAuthService struct {
	signupFn                func(ctx context.Context, email, password, name string) (*types.User, string, error)
	confirmEmailFn          func(ctx context.Context, rawToken string, flow types.ConfirmFlow) (*types.User, error)
	resendConfirmationFn    func(ctx context.Context, email string) (string, error)
	loginFn                 func(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)
	logoutFn                func(ctx context.Context, rawToken string) error
	requestPasswordResetFn  func(ctx context.Context, email string) (string, error)
	completePasswordResetFn func(ctx context.Context, rawToken, newPassword string) error
	updateProfileFn         func(ctx context.Context, userID, name string) (*types.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, email, password, name string) (*types.User, string, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password, name)
	}
	return nil, "", errors.New("Signup not mocked")
}

func (m *mockAuthService) ConfirmEmail(ctx context.Context, rawToken string, flow types.ConfirmFlow) (*types.User, error) {
	if m.confirmEmailFn != nil {
		return m.confirmEmailFn(ctx, rawToken, flow)
	}
	return nil, errors.New("ConfirmEmail not mocked")
}

func (m *mockAuthService) ResendConfirmation(ctx context.Context, email string) (string, error) {
	if m.resendConfirmationFn != nil {
		return m.resendConfirmationFn(ctx, email)
	}
	return "", nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password, ip, userAgent)
	}
	return nil, nil, "", errors.New("Login not mocked")
}

func (m *mockAuthService) Logout(ctx context.Context, rawToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, rawToken)
	}
	return nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, email)
	}
	return "", nil
}

func (m *mockAuthService) CompletePasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if m.completePasswordResetFn != nil {
		return m.completePasswordResetFn(ctx, rawToken, newPassword)
	}
	return nil
}

func (m *mockAuthService) UpdateProfile(ctx context.Context, userID, name string) (*types.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, name)
	}
	return nil, errors.New("UpdateProfile not mocked")
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestAuthHandler(authSvc *mockAuthService) *AuthHandler {
	return NewAuthHandler(
		authSvc,
		DefaultCookieConfig(),
		"https://app.emberwatch.example",
		nil, // requireAuth - identity in tests
		nil, // logger
		core.NewValidator(nil),
	)
}

func testUser() *types.User {
	return &types.User{
		ID:        "user_test123",
		Email:     "test@example.com",
		Name:      "Test User",
		Status:    types.UserStatusActive,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testSession() *types.Session {
	return &types.Session{
		ID:        "hashed_session_id",
		UserID:    "user_test123",
		CSRFToken: "csrf_token_xyz",
		ExpiresAt: time.Date(2026, 7, 8, 12, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

// findCookie searches the response recorder's Set-Cookie headers for the named cookie.
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// =============================================================================
// HandleLogin Tests
// =============================================================================

func TestHandleLogin_Success(t *testing.T) {
	user := testUser()
	session := testSession()

	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
			if email != "test@example.com" {
				t.Errorf("expected email 'test@example.com', got %q", email)
			}
			if password != "correct_password" {
				t.Errorf("expected password 'correct_password', got %q", password)
			}
			return user, session, "raw_session_token", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"Test@Example.com","password":"correct_password"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data AuthResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Data.CSRFToken != "csrf_token_xyz" {
		t.Errorf("expected CSRF token 'csrf_token_xyz', got %q", resp.Data.CSRFToken)
	}
	if resp.Data.User == nil || resp.Data.User.ID != "user_test123" {
		t.Errorf("expected user in response, got %+v", resp.Data.User)
	}
	if resp.Data.ExpiresAt.IsZero() {
		t.Error("expected non-zero ExpiresAt")
	}

	// Session token travels only via the cookie, never in the body.
	if strings.Contains(w.Body.String(), "raw_session_token") {
		t.Error("raw session token must not appear in the response body")
	}

	cookie := findCookie(w, "session_id")
	if cookie == nil {
		t.Fatal("expected session_id cookie to be set")
	}
	if cookie.Value != "raw_session_token" {
		t.Errorf("expected cookie value 'raw_session_token', got %q", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
	if !cookie.Secure {
		t.Error("expected Secure cookie")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite=Lax, got %d", cookie.SameSite)
	}
	if cookie.MaxAge != 604800 {
		t.Errorf("expected MaxAge=604800, got %d", cookie.MaxAge)
	}
}

func TestHandleLogin_RedirectEchoedWhenSafe(t *testing.T) {
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, _, _ string) (*types.User, *types.Session, string, error) {
			return testUser(), testSession(), "raw_session_token", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"test@example.com","password":"pw","redirect":"/predictions?location=Yosemite"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data AuthResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Redirect != "/predictions?location=Yosemite" {
		t.Errorf("expected redirect echoed back, got %q", resp.Data.Redirect)
	}
}

func TestHandleLogin_AbsoluteRedirectFallsBack(t *testing.T) {
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, _, _ string) (*types.User, *types.Session, string, error) {
			return testUser(), testSession(), "raw_session_token", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	tests := []struct {
		name     string
		redirect string
	}{
		{"external URL", "https://evil.example/phish"},
		{"protocol-relative", "//evil.example/phish"},
		{"backslash trick", "/\\evil.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{
				"email":    "test@example.com",
				"password": "pw",
				"redirect": tt.redirect,
			})
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(string(body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleLogin(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
			}

			var resp struct {
				Data AuthResponse `json:"data"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Data.Redirect != "/" {
				t.Errorf("expected unsafe redirect to fall back to '/', got %q", resp.Data.Redirect)
			}
		})
	}
}

func TestHandleLogin_InvalidCredsGenericMessage(t *testing.T) {
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, _, _ string) (*types.User, *types.Session, string, error) {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found: test@example.com", nil)
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"test@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d; body: %s", w.Code, w.Body.String())
	}

	var errResp core.APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	// Unknown users are masked as invalid credentials.
	if errResp.Error.Code != string(types.ErrCodeAuthInvalidCreds) {
		t.Errorf("expected error code %q, got %q", types.ErrCodeAuthInvalidCreds, errResp.Error.Code)
	}
	if errResp.Error.Message != "Invalid email or password." {
		t.Errorf("expected generic message, got %q", errResp.Error.Message)
	}

	if findCookie(w, "session_id") != nil {
		t.Error("expected no session cookie on failed login")
	}
}

func TestHandleLogin_AccountLocked(t *testing.T) {
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, _, _ string) (*types.User, *types.Session, string, error) {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthLocked, "locked", nil)
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"test@example.com","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d; body: %s", w.Code, w.Body.String())
	}
}

func TestHandleLogin_PendingAccountRejected(t *testing.T) {
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, _, _ string) (*types.User, *types.Session, string, error) {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthEmailNotVerified, "email not verified", nil)
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"test@example.com","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d; body: %s", w.Code, w.Body.String())
	}
}

func TestHandleLogin_ClientIPFromForwardedFor(t *testing.T) {
	var receivedIP string
	authSvc := &mockAuthService{
		loginFn: func(_ context.Context, _, _, ip, _ string) (*types.User, *types.Session, string, error) {
			receivedIP = ip
			return testUser(), testSession(), "raw_session_token", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"test@example.com","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()

	handler.HandleLogin(w, req)

	if receivedIP != "203.0.113.9" {
		t.Errorf("expected first X-Forwarded-For entry, got %q", receivedIP)
	}
}

// =============================================================================
// HandleSignup Tests
// =============================================================================

func TestHandleSignup_Success(t *testing.T) {
	pending := testUser()
	pending.Status = types.UserStatusPending

	var receivedEmail, receivedName string
	authSvc := &mockAuthService{
		signupFn: func(_ context.Context, email, password, name string) (*types.User, string, error) {
			receivedEmail, receivedName = email, name
			if password != "P@ssw0rd!" {
				t.Errorf("expected password to pass through, got %q", password)
			}
			return pending, "raw_confirm_token", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"New@Example.com","name":"  New User  ","password":"P@ssw0rd!","confirm_password":"P@ssw0rd!"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleSignup(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d; body: %s", w.Code, w.Body.String())
	}
	if receivedEmail != "new@example.com" {
		t.Errorf("expected canonicalized email, got %q", receivedEmail)
	}
	if receivedName != "New User" {
		t.Errorf("expected trimmed name, got %q", receivedName)
	}

	// The confirmation token is handed out via the log, never the body.
	if strings.Contains(w.Body.String(), "raw_confirm_token") {
		t.Error("confirmation token must not appear in the response body")
	}
}

func TestHandleSignup_PasswordMismatch(t *testing.T) {
	called := false
	authSvc := &mockAuthService{
		signupFn: func(_ context.Context, _, _, _ string) (*types.User, string, error) {
			called = true
			return nil, "", nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"new@example.com","password":"P@ssw0rd!","confirm_password":"different"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleSignup(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d; body: %s", w.Code, w.Body.String())
	}
	if called {
		t.Error("service must not be called when passwords do not match")
	}

	var errResp core.APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeValidationPasswordMismatch) {
		t.Errorf("expected password mismatch code, got %q", errResp.Error.Code)
	}
}

func TestHandleSignup_WeakPasswordFlagsSurface(t *testing.T) {
	weakErr := types.NewAppErrorWithDetails(
		types.ErrCodeValidationWeakPassword,
		"password does not meet requirements",
		nil,
		map[string]any{
			"password_check": map[string]bool{
				"min_length": true, "has_uppercase": false, "has_number": false, "has_special": false,
			},
		},
	)
	authSvc := &mockAuthService{
		signupFn: func(_ context.Context, _, _, _ string) (*types.User, string, error) {
			return nil, "", weakErr
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"email":"new@example.com","password":"password","confirm_password":"password"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleSignup(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d; body: %s", w.Code, w.Body.String())
	}

	var errResp core.APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	check, ok := errResp.Error.Details["password_check"].(map[string]any)
	if !ok {
		t.Fatalf("expected password_check details, got %+v", errResp.Error.Details)
	}
	if check["has_uppercase"] != false {
		t.Errorf("expected has_uppercase=false in details, got %v", check["has_uppercase"])
	}
}

// =============================================================================
// HandleConfirm Tests
// =============================================================================

func TestHandleConfirm_SignupRedirectsToSignIn(t *testing.T) {
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, rawToken string, flow types.ConfirmFlow) (*types.User, error) {
			if rawToken != "tok123" {
				t.Errorf("expected token 'tok123', got %q", rawToken)
			}
			if flow != types.ConfirmFlowSignup {
				t.Errorf("expected signup flow, got %q", flow)
			}
			return testUser(), nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=signup", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	want := "https://app.emberwatch.example/sign-in?confirmed=true"
	if loc != want {
		t.Errorf("expected redirect to %q, got %q", want, loc)
	}
}

func TestHandleConfirm_DefaultsToSignupFlow(t *testing.T) {
	var gotFlow types.ConfirmFlow
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, _ string, flow types.ConfirmFlow) (*types.User, error) {
			gotFlow = flow
			return testUser(), nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	if gotFlow != types.ConfirmFlowSignup {
		t.Errorf("expected default flow signup, got %q", gotFlow)
	}
}

func TestHandleConfirm_RecoveryRedirectsToResetForm(t *testing.T) {
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, _ string, flow types.ConfirmFlow) (*types.User, error) {
			if flow != types.ConfirmFlowRecovery {
				t.Errorf("expected recovery flow, got %q", flow)
			}
			return testUser(), nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=recovery", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	want := "https://app.emberwatch.example/reset-password?token=tok123"
	if loc != want {
		t.Errorf("expected redirect to %q, got %q", want, loc)
	}
}

func TestHandleConfirm_SafeRedirectHonored(t *testing.T) {
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, _ string, _ types.ConfirmFlow) (*types.User, error) {
			return testUser(), nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=signup&redirect=%2Fwelcome", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	loc := w.Header().Get("Location")
	want := "https://app.emberwatch.example/welcome?confirmed=true"
	if loc != want {
		t.Errorf("expected redirect to %q, got %q", want, loc)
	}
}

func TestHandleConfirm_ExternalRedirectIgnored(t *testing.T) {
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, _ string, _ types.ConfirmFlow) (*types.User, error) {
			return testUser(), nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=signup&redirect=https%3A%2F%2Fevil.example", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	loc := w.Header().Get("Location")
	want := "https://app.emberwatch.example/sign-in?confirmed=true"
	if loc != want {
		t.Errorf("expected external redirect to be ignored, got %q", loc)
	}
}

func TestHandleConfirm_ExpiredTokenRedirectsWithError(t *testing.T) {
	authSvc := &mockAuthService{
		confirmEmailFn: func(_ context.Context, _ string, _ types.ConfirmFlow) (*types.User, error) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token expired", nil)
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=signup", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	want := "https://app.emberwatch.example/sign-in?error=token_expired"
	if loc != want {
		t.Errorf("expected redirect to %q, got %q", want, loc)
	}
}

func TestHandleConfirm_MissingToken(t *testing.T) {
	handler := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?type=signup", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "error=missing_token") {
		t.Errorf("expected missing_token error in redirect, got %q", loc)
	}
}

func TestHandleConfirm_UnknownFlow(t *testing.T) {
	handler := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok123&type=magic", nil)
	w := httptest.NewRecorder()

	handler.HandleConfirm(w, req)

	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "error=invalid_flow") {
		t.Errorf("expected invalid_flow error in redirect, got %q", loc)
	}
}

// =============================================================================
// HandleLogout Tests
// =============================================================================

func TestHandleLogout_InvalidatesSessionAndClearsCookie(t *testing.T) {
	var invalidated string
	authSvc := &mockAuthService{
		logoutFn: func(_ context.Context, rawToken string) error {
			invalidated = rawToken
			return nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "raw_session_token"})
	w := httptest.NewRecorder()

	handler.HandleLogout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if invalidated != "raw_session_token" {
		t.Errorf("expected session invalidation with cookie token, got %q", invalidated)
	}

	cookie := findCookie(w, "session_id")
	if cookie == nil {
		t.Fatal("expected clearing Set-Cookie header")
	}
	if cookie.Value != "" {
		t.Errorf("expected empty cookie value, got %q", cookie.Value)
	}
	if cookie.MaxAge != -1 {
		t.Errorf("expected MaxAge=-1, got %d", cookie.MaxAge)
	}
}

func TestHandleLogout_NoCookieStillSucceeds(t *testing.T) {
	called := false
	authSvc := &mockAuthService{
		logoutFn: func(_ context.Context, _ string) error {
			called = true
			return nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	handler.HandleLogout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if called {
		t.Error("service must not be called without a session cookie")
	}
	if findCookie(w, "session_id") == nil {
		t.Error("expected residual cookie to be cleared anyway")
	}
}

// =============================================================================
// Password Reset Tests
// =============================================================================

func TestHandleForgotPassword_AlwaysGenericResponse(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"known email", nil},
		{"unknown email", types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authSvc := &mockAuthService{
				requestPasswordResetFn: func(_ context.Context, _ string) (string, error) {
					return "", tt.err
				},
			}
			handler := newTestAuthHandler(authSvc)

			body := `{"email":"someone@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleForgotPassword(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200 regardless of outcome, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), "If an account exists") {
				t.Errorf("expected generic message, got %s", w.Body.String())
			}
		})
	}
}

func TestHandleResetPassword_Success(t *testing.T) {
	var gotToken, gotPassword string
	authSvc := &mockAuthService{
		completePasswordResetFn: func(_ context.Context, rawToken, newPassword string) error {
			gotToken, gotPassword = rawToken, newPassword
			return nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"token":"reset_tok","new_password":"N3w-P@ssword","confirm_password":"N3w-P@ssword"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleResetPassword(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if gotToken != "reset_tok" || gotPassword != "N3w-P@ssword" {
		t.Errorf("unexpected service args: token=%q password=%q", gotToken, gotPassword)
	}
}

func TestHandleResetPassword_Mismatch(t *testing.T) {
	called := false
	authSvc := &mockAuthService{
		completePasswordResetFn: func(_ context.Context, _, _ string) error {
			called = true
			return nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"token":"reset_tok","new_password":"N3w-P@ssword","confirm_password":"other"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleResetPassword(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if called {
		t.Error("service must not be called when passwords do not match")
	}
}

// =============================================================================
// HandlePasswordCheck Tests
// =============================================================================

func TestHandlePasswordCheck(t *testing.T) {
	handler := newTestAuthHandler(&mockAuthService{})

	body := `{"password":"P@ssw0rd"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/password-check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandlePasswordCheck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Check map[string]bool `json:"check"`
			Valid bool            `json:"valid"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Data.Valid {
		t.Error("expected P@ssw0rd to satisfy all rules")
	}
	for _, rule := range []string{"min_length", "has_uppercase", "has_number", "has_special"} {
		if !resp.Data.Check[rule] {
			t.Errorf("expected %s=true, got %v", rule, resp.Data.Check)
		}
	}
}

// =============================================================================
// HandleUpdateProfile Tests
// =============================================================================

func TestHandleUpdateProfile_Success(t *testing.T) {
	updated := testUser()
	updated.Name = "Renamed"

	var gotUserID, gotName string
	authSvc := &mockAuthService{
		updateProfileFn: func(_ context.Context, userID, name string) (*types.User, error) {
			gotUserID, gotName = userID, name
			return updated, nil
		},
	}
	handler := newTestAuthHandler(authSvc)

	body := `{"name":"  Renamed  "}`
	req := httptest.NewRequest(http.MethodPatch, "/auth/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{UserID: "user_test123", Email: "test@example.com"}))
	w := httptest.NewRecorder()

	handler.HandleUpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if gotUserID != "user_test123" {
		t.Errorf("expected actor user ID, got %q", gotUserID)
	}
	if gotName != "Renamed" {
		t.Errorf("expected trimmed name, got %q", gotName)
	}
}

func TestHandleUpdateProfile_RequiresActor(t *testing.T) {
	handler := newTestAuthHandler(&mockAuthService{})

	body := `{"name":"Renamed"}`
	req := httptest.NewRequest(http.MethodPatch, "/auth/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleUpdateProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
