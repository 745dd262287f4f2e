package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"emberwatch/internal/types"
)

// SessionRepository provides data access for the sessions table. Sessions are
// stored keyed by the SHA-256 hash of the raw token, never the token itself.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `s.id, s.user_id, s.csrf_token, s.user_agent, s.ip_address,
	s.expires_at, s.last_activity_at, s.created_at`

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.CSRFToken,
		&s.UserAgent,
		&s.IPAddress,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create persists a new session. The ID must already be the token hash.
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, csrf_token, user_agent, ip_address, expires_at, last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.CSRFToken, s.UserAgent, s.IPAddress,
		s.ExpiresAt, s.LastActivityAt, s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID retrieves a session by token hash. Expiration is the caller's
// responsibility so the resolver can report expired and missing distinctly.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return s, nil
}

// Touch extends the sliding window: bumps last_activity_at and the expiry.
func (r *SessionRepository) Touch(ctx context.Context, id string, lastActivity, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $1, expires_at = $2 WHERE id = $3`,
		lastActivity, expiresAt, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to touch session", err)
	}
	return nil
}

// Delete removes a session (logout).
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user, used after a password reset
// so stolen sessions cannot outlive the credential change.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete user sessions", err)
	}
	return nil
}

// DeleteExpiredByUser purges a single user's expired sessions. Called lazily
// from the login transaction so the table does not accumulate dead rows.
func (r *SessionRepository) DeleteExpiredByUser(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND expires_at < $2`,
		userID, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to purge expired user sessions", err)
	}
	return nil
}

