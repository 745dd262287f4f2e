package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"emberwatch/internal/types"
)

// SessionConfig holds session lifetime settings.
type SessionConfig struct {
	// SessionDuration is the lifetime of a new session and the width of the
	// sliding window applied on activity.
	SessionDuration time.Duration
}

// DefaultSessionConfig returns the default session configuration (7 days).
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionDuration: 7 * 24 * time.Hour,
	}
}

// SessionRepo defines the data access methods needed by the session service.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByID(ctx context.Context, id string) (*types.Session, error)
	Touch(ctx context.Context, id string, lastActivity, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpiredByUser(ctx context.Context, userID string, now time.Time) error
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateSessionToken() (string, error)
	GenerateCSRF() (string, error)
	GenerateSecureToken() (string, error) // confirmation and reset tokens
}

// HashToken produces a hex-encoded SHA-256 hash of a raw token. Tokens are
// stored hashed so a database leak does not expose usable credentials;
// SHA-256 (unlike bcrypt) keeps the hash searchable by equality.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// sessionService creates, validates, and revokes sessions. Sessions are
// persisted keyed by the token hash, never the raw token.
type sessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewSessionService creates a session service. Nil clock and logger fall back
// to real implementations.
func NewSessionService(repo SessionRepo, tokenGen TokenGenerator, config SessionConfig, clock types.Clock, logger *slog.Logger) *sessionService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSession creates a session for the user and returns the stored Session
// together with the raw token for the cookie. The raw token is never
// persisted.
func (s *sessionService) CreateSession(ctx context.Context, userID, ip, userAgent string) (*types.Session, string, error) {
	rawToken, err := s.tokenGen.GenerateSessionToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	csrfToken, err := s.tokenGen.GenerateCSRF()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate CSRF token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:             HashToken(rawToken),
		UserID:         userID,
		CSRFToken:      csrfToken,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ExpiresAt:      now.Add(s.config.SessionDuration),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.Info("session created", "user_id", userID)

	return session, rawToken, nil
}

// ValidateSession resolves a raw token to its session, enforcing expiry and
// extending the sliding window on success.
func (s *sessionService) ValidateSession(ctx context.Context, rawToken string) (*types.Session, error) {
	session, err := s.repo.GetByID(ctx, HashToken(rawToken))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now.After(session.ExpiresAt) {
		s.logger.Info("session expired",
			"user_id", session.UserID,
			"expired_at", session.ExpiresAt,
		)
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}

	// Sliding window: best effort, a failed touch does not invalidate the
	// request.
	if err := s.repo.Touch(ctx, session.ID, now, now.Add(s.config.SessionDuration)); err != nil {
		s.logger.Warn("failed to extend session", "user_id", session.UserID, "error", err)
	}

	return session, nil
}

// InvalidateSession hard-deletes a single session (logout).
func (s *sessionService) InvalidateSession(ctx context.Context, rawToken string) error {
	if err := s.repo.Delete(ctx, HashToken(rawToken)); err != nil {
		return err
	}
	s.logger.Info("session invalidated")
	return nil
}

// InvalidateAllUserSessions removes every session for a user. Called after a
// password reset so stolen sessions die with the old credential.
func (s *sessionService) InvalidateAllUserSessions(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("all sessions invalidated for user", "user_id", userID)
	return nil
}

// CleanExpiredSessions removes expired sessions for a user. This is the lazy
// cleanup called during login transactions; the sessions table has no
// scheduled sweeper, so each login tidies the user's own leftovers.
func (s *sessionService) CleanExpiredSessions(ctx context.Context, userID string) error {
	return s.repo.DeleteExpiredByUser(ctx, userID, s.clock.Now())
}

// withRepo returns a copy of the sessionService that uses the given
// SessionRepo. This lets the AuthService create sessions within a transaction
// by providing a transaction-scoped repository while reusing the same token
// generator and config.
func (s *sessionService) withRepo(repo SessionRepo) *sessionService {
	return &sessionService{
		repo:     repo,
		tokenGen: s.tokenGen,
		config:   s.config,
		clock:    s.clock,
		logger:   s.logger,
	}
}

// CryptoTokenGenerator is the production TokenGenerator using crypto/rand.
type CryptoTokenGenerator struct{}

func NewCryptoTokenGenerator() *CryptoTokenGenerator {
	return &CryptoTokenGenerator{}
}

// GenerateSessionToken returns 32 random bytes as 64 hex characters.
func (g *CryptoTokenGenerator) GenerateSessionToken() (string, error) {
	return randomHex("session token")
}

// GenerateCSRF returns 32 random bytes as 64 hex characters.
func (g *CryptoTokenGenerator) GenerateCSRF() (string, error) {
	return randomHex("CSRF token")
}

// GenerateSecureToken returns 32 random bytes as 64 hex characters, used for
// email confirmation and password reset links.
func (g *CryptoTokenGenerator) GenerateSecureToken() (string, error) {
	return randomHex("secure token")
}

func randomHex(kind string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	return hex.EncodeToString(b), nil
}

// CanonicalizeEmail normalizes email addresses for consistent lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
