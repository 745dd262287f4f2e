package core

import (
	"context"

	"emberwatch/internal/types"
)

// Authenticator decouples the HTTP layer from the session store, allowing
// easy mocking in tests.
type Authenticator interface {
	// ResolveSession looks up the raw session token (from the session cookie)
	// and returns the authenticated Actor together with the session's CSRF
	// token. The implementation is responsible for the sliding-window
	// expiration check and for touching last_activity_at.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid if the token is malformed or not found.
	//   - ErrCodeAuthSessionExpired if the session exists but has expired.
	ResolveSession(ctx context.Context, token string) (*types.Actor, string, error)
}
