package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"emberwatch/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given connection
// (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns is the standard column set for user queries, kept in one place
// to avoid column drift between methods.
const userColumns = `u.id, u.email, u.name, u.password_hash, u.status,
	u.confirm_token_hash, u.confirm_expires_at,
	u.reset_token_hash, u.reset_expires_at,
	u.created_at, u.last_login_at`

// scanUser scans a single row in userColumns order. Nullable text columns use
// pointer targets because the schema allows NULL for tokens and name.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		name             *string
		confirmTokenHash *string
		resetTokenHash   *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&name,
		&u.PasswordHash,
		&u.Status,
		&confirmTokenHash,
		&u.ConfirmExpiresAt,
		&resetTokenHash,
		&u.ResetExpiresAt,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	if confirmTokenHash != nil {
		u.ConfirmTokenHash = *confirmTokenHash
	}
	if resetTokenHash != nil {
		u.ResetTokenHash = *resetTokenHash
	}
	return &u, nil
}

// Create inserts a new pending user. Returns ErrCodeConflictEmail when the
// email is already registered.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, status, confirm_token_hash, confirm_expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, nullableString(u.Name), u.PasswordHash, u.Status,
		nullableString(u.ConfirmTokenHash), u.ConfirmExpiresAt, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "email address is already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID. Returns ErrCodeNotFoundUser when absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address. Returns
// ErrCodeAuthUserNotFound when no account exists for the address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.email = $1`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by email", err)
	}
	return u, nil
}

// GetByConfirmTokenHash looks up a pending user by the hash of their email
// confirmation token.
func (r *UserRepository) GetByConfirmTokenHash(ctx context.Context, tokenHash string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.confirm_token_hash = $1`, tokenHash)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "confirmation token not recognized", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by confirmation token", err)
	}
	return u, nil
}

// GetByResetTokenHash looks up a user by the hash of their password-reset token.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.reset_token_hash = $1`, tokenHash)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "reset token not recognized", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by reset token", err)
	}
	return u, nil
}

// Activate marks a pending user active and clears the confirmation token.
func (r *UserRepository) Activate(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET status = $1, confirm_token_hash = NULL, confirm_expires_at = NULL
		 WHERE id = $2`,
		types.UserStatusActive, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// SetConfirmToken replaces the confirmation token hash and expiry, used when
// resending the confirmation email.
func (r *UserRepository) SetConfirmToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET confirm_token_hash = $1, confirm_expires_at = $2 WHERE id = $3`,
		tokenHash, expiresAt, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set confirmation token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// SetResetToken stores the password-reset token hash and expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET reset_token_hash = $1, reset_expires_at = $2 WHERE id = $3`,
		tokenHash, expiresAt, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set reset token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any outstanding reset
// token in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET password_hash = $1, reset_token_hash = NULL, reset_expires_at = NULL
		 WHERE id = $2`,
		passwordHash, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update password", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdateName changes the display name. Email is immutable after signup, so
// this is the only profile field with an update path.
func (r *UserRepository) UpdateName(ctx context.Context, userID, name string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET name = $1 WHERE id = $2`, nullableString(name), userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update name", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *UserRepository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record login time", err)
	}
	return nil
}

// nullableString maps "" to NULL for optional text columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
