package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"emberwatch/internal/types"
)

// UserRepo defines the data access methods needed by the AuthService.
type UserRepo interface {
	Create(ctx context.Context, u *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	GetByConfirmTokenHash(ctx context.Context, tokenHash string) (*types.User, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*types.User, error)
	Activate(ctx context.Context, userID string) error
	SetConfirmToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateName(ctx context.Context, userID, name string) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// AuthTxManager abstracts transactional execution. The callback receives
// transaction-scoped repositories so all writes participate in one database
// transaction.
type AuthTxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, txUserRepo UserRepo, txSessionRepo SessionRepo) error) error
}

// TokenConfig holds validity windows for email-delivered tokens.
type TokenConfig struct {
	ConfirmTokenTTL time.Duration
	ResetTokenTTL   time.Duration
}

// DefaultTokenConfig returns 24h confirmation and 1h reset validity.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		ConfirmTokenTTL: 24 * time.Hour,
		ResetTokenTTL:   time.Hour,
	}
}

// AuthService implements account lifecycle and credential flows. All
// email-delivered tokens (confirmation, reset) are returned raw to the caller
// for delivery and stored only as SHA-256 hashes.
type AuthService struct {
	userRepo   UserRepo
	sessionSvc *sessionService
	security   SecurityService
	txManager  AuthTxManager
	hasher     PasswordHasher
	tokenGen   TokenGenerator
	tokens     TokenConfig
	clock      types.Clock
	logger     *slog.Logger
}

// AuthServiceConfig holds the dependencies for creating an AuthService.
type AuthServiceConfig struct {
	UserRepo       UserRepo
	SessionService *sessionService
	Security       SecurityService
	TxManager      AuthTxManager
	Hasher         PasswordHasher
	TokenGen       TokenGenerator
	Tokens         TokenConfig
	Clock          types.Clock
	Logger         *slog.Logger
}

// NewAuthService creates an AuthService. Nil hasher, token generator, clock,
// and logger fall back to production implementations.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	tokenGen := cfg.TokenGen
	if tokenGen == nil {
		tokenGen = NewCryptoTokenGenerator()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := cfg.Tokens
	if tokens.ConfirmTokenTTL == 0 {
		tokens = DefaultTokenConfig()
	}
	return &AuthService{
		userRepo:   cfg.UserRepo,
		sessionSvc: cfg.SessionService,
		security:   cfg.Security,
		txManager:  cfg.TxManager,
		hasher:     hasher,
		tokenGen:   tokenGen,
		tokens:     tokens,
		clock:      clock,
		logger:     logger,
	}
}

// Signup creates a pending account and returns the user together with the
// raw confirmation token for email delivery.
//
// Weak passwords are rejected with a structured check result in the error
// details so the client can show per-requirement feedback. Duplicate emails
// surface as ErrCodeConflictEmail.
func (s *AuthService) Signup(ctx context.Context, email, password, name string) (*types.User, string, error) {
	email = CanonicalizeEmail(email)

	check := CheckPassword(password)
	if !check.Valid() {
		return nil, "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationWeakPassword,
			"password does not meet the strength requirements",
			nil,
			map[string]any{"password_check": check},
		)
	}

	passwordHash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	rawToken, err := s.tokenGen.GenerateSecureToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate confirmation token", err)
	}

	now := s.clock.Now()
	confirmExpires := now.Add(s.tokens.ConfirmTokenTTL)
	user := &types.User{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             name,
		PasswordHash:     passwordHash,
		Status:           types.UserStatusPending,
		ConfirmTokenHash: HashToken(rawToken),
		ConfirmExpiresAt: &confirmExpires,
		CreatedAt:        now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	s.logger.Info("user signed up", "user_id", user.ID, "email", email)

	return user, rawToken, nil
}

// ConfirmEmail processes a token arriving on the confirmation endpoint.
//
// For the signup flow the token activates the pending account. For the
// recovery flow the token is only validated; the password change happens in
// CompletePasswordReset with the same token.
func (s *AuthService) ConfirmEmail(ctx context.Context, rawToken string, flow types.ConfirmFlow) (*types.User, error) {
	switch flow {
	case types.ConfirmFlowSignup:
		user, err := s.userRepo.GetByConfirmTokenHash(ctx, HashToken(rawToken))
		if err != nil {
			return nil, err
		}
		if user.ConfirmExpiresAt != nil && s.clock.Now().After(*user.ConfirmExpiresAt) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "confirmation token has expired", nil)
		}
		if err := s.userRepo.Activate(ctx, user.ID); err != nil {
			return nil, err
		}
		user.Status = types.UserStatusActive
		user.ConfirmTokenHash = ""
		user.ConfirmExpiresAt = nil

		s.logger.Info("email confirmed", "user_id", user.ID)
		return user, nil

	case types.ConfirmFlowRecovery:
		user, err := s.userRepo.GetByResetTokenHash(ctx, HashToken(rawToken))
		if err != nil {
			return nil, err
		}
		if user.ResetExpiresAt != nil && s.clock.Now().After(*user.ResetExpiresAt) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "reset token has expired", nil)
		}
		return user, nil

	default:
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown confirmation flow", nil)
	}
}

// ResendConfirmation issues a fresh confirmation token for a pending account.
// Unknown emails and already-active accounts return an empty token without
// error, so the endpoint does not reveal which addresses are registered.
func (s *AuthService) ResendConfirmation(ctx context.Context, email string) (string, error) {
	email = CanonicalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			return "", nil
		}
		return "", err
	}
	if user.Status == types.UserStatusActive {
		return "", nil
	}

	rawToken, err := s.tokenGen.GenerateSecureToken()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate confirmation token", err)
	}

	expiresAt := s.clock.Now().Add(s.tokens.ConfirmTokenTTL)
	if err := s.userRepo.SetConfirmToken(ctx, user.ID, HashToken(rawToken), expiresAt); err != nil {
		return "", err
	}

	s.logger.Info("confirmation token reissued", "user_id", user.ID)
	return rawToken, nil
}

// Login verifies credentials and creates a session inside a transaction.
//
// Enumeration protection: user-not-found and wrong-password both return the
// generic invalid-credentials error. Pending accounts are told to verify
// their email first. Lockout is checked before any password work.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	email = CanonicalizeEmail(email)

	blocked, err := s.security.IsBlocked(ctx, email, ip)
	if err != nil {
		return nil, nil, "", err
	}
	if blocked {
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthLocked, "too many failed attempts, try again later", nil)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			_ = s.security.RecordAttempt(ctx, "login", email, ip, false, "user_not_found")
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		_ = s.security.RecordAttempt(ctx, "login", email, ip, false, "invalid_creds")
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	if user.Status != types.UserStatusActive {
		_ = s.security.RecordAttempt(ctx, "login", email, ip, false, "email_not_verified")
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthEmailNotVerified, "email address has not been verified", nil)
	}

	var (
		session  *types.Session
		rawToken string
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context, txUserRepo UserRepo, txSessionRepo SessionRepo) error {
		if touchErr := txUserRepo.TouchLastLogin(txCtx, user.ID, s.clock.Now()); touchErr != nil {
			return touchErr
		}

		txSessionSvc := s.sessionSvc.withRepo(txSessionRepo)
		sess, raw, createErr := txSessionSvc.CreateSession(txCtx, user.ID, ip, userAgent)
		if createErr != nil {
			return createErr
		}
		session = sess
		rawToken = raw

		// Lazy cleanup: purge this user's expired sessions while we hold
		// the transaction. Best effort, a failed purge never blocks login.
		if cleanupErr := txSessionSvc.CleanExpiredSessions(txCtx, user.ID); cleanupErr != nil {
			s.logger.Warn("failed to clean expired sessions during login",
				"user_id", user.ID,
				"error", cleanupErr,
			)
		}

		return nil
	})
	if err != nil {
		return nil, nil, "", err
	}

	_ = s.security.RecordAttempt(ctx, "login", email, ip, true, "")

	s.logger.Info("user logged in", "user_id", user.ID)

	return user, session, rawToken, nil
}

// Logout invalidates the session identified by the raw cookie token.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	return s.sessionSvc.InvalidateSession(ctx, rawToken)
}

// RequestPasswordReset issues a reset token for the account, returned raw for
// email delivery. Unknown emails return an empty token without error.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = CanonicalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			return "", nil
		}
		return "", err
	}

	rawToken, err := s.tokenGen.GenerateSecureToken()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate reset token", err)
	}

	expiresAt := s.clock.Now().Add(s.tokens.ResetTokenTTL)
	if err := s.userRepo.SetResetToken(ctx, user.ID, HashToken(rawToken), expiresAt); err != nil {
		return "", err
	}

	s.logger.Info("password reset requested", "user_id", user.ID)
	return rawToken, nil
}

// CompletePasswordReset sets a new password for the account holding the valid
// reset token, then revokes every session the account had.
func (s *AuthService) CompletePasswordReset(ctx context.Context, rawToken, newPassword string) error {
	check := CheckPassword(newPassword)
	if !check.Valid() {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationWeakPassword,
			"password does not meet the strength requirements",
			nil,
			map[string]any{"password_check": check},
		)
	}

	user, err := s.userRepo.GetByResetTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		return err
	}
	if user.ResetExpiresAt != nil && s.clock.Now().After(*user.ResetExpiresAt) {
		return types.NewAppError(types.ErrCodeAuthTokenExpired, "reset token has expired", nil)
	}

	passwordHash, err := s.hasher.GenerateFromPassword(newPassword)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}

	if err := s.sessionSvc.InvalidateAllUserSessions(ctx, user.ID); err != nil {
		// The password change committed; a failed revocation is logged but
		// not surfaced as a reset failure.
		s.logger.Error("failed to revoke sessions after password reset",
			"user_id", user.ID,
			"error", err,
		)
	}

	s.logger.Info("password reset completed", "user_id", user.ID)
	return nil
}

// UpdateProfile changes the display name. Email is immutable after signup.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*types.User, error) {
	if err := s.userRepo.UpdateName(ctx, userID, name); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, userID)
}

// ResolveSession implements the chassis Authenticator: it maps a raw session
// cookie token to the acting user and the session's CSRF token.
func (s *AuthService) ResolveSession(ctx context.Context, rawToken string) (*types.Actor, string, error) {
	session, err := s.sessionSvc.ValidateSession(ctx, rawToken)
	if err != nil {
		return nil, "", err
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "session user no longer exists", err)
	}

	return &types.Actor{UserID: user.ID, Email: user.Email}, session.CSRFToken, nil
}
