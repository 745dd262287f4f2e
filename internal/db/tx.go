package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"emberwatch/internal/auth"
)

// AuthTxRunner implements auth.AuthTxManager on top of a pgx pool. The
// callback receives repositories bound to the transaction connection.
type AuthTxRunner struct {
	pool *pgxpool.Pool
}

func NewAuthTxRunner(pool *pgxpool.Pool) *AuthTxRunner {
	return &AuthTxRunner{pool: pool}
}

// RunInTx executes fn with transaction-scoped user and session repositories.
func (r *AuthTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, txUserRepo auth.UserRepo, txSessionRepo auth.SessionRepo) error) error {
	return RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewUserRepository(tx), NewSessionRepository(tx))
	})
}
