// Package auth implements authentication, session management, and abuse
// protection for the Emberwatch service.
package auth

import (
	"context"
	"log/slog"
	"time"

	"emberwatch/internal/types"
)

// SecurityConfig holds the tunable thresholds for brute force protection.
type SecurityConfig struct {
	// IdentifierBlockThreshold is the number of failed login attempts for an
	// identifier within the window before further attempts are blocked.
	IdentifierBlockThreshold int

	// IPBlockThreshold is the number of failed attempts from a single IP
	// within the window before the IP is blocked.
	IPBlockThreshold int

	// WindowDuration is the lookback window for counting failures.
	WindowDuration time.Duration
}

// DefaultSecurityConfig returns thresholds suitable for production.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IdentifierBlockThreshold: 10,
		IPBlockThreshold:         100,
		WindowDuration:           15 * time.Minute,
	}
}

// SecurityRepo defines the data access methods needed by the SecurityService.
type SecurityRepo interface {
	LogAttempt(ctx context.Context, event *types.SecurityEvent) error
	CountRecentFailuresByIdentifier(ctx context.Context, identifier string, since time.Time) (int, error)
	CountRecentFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
}

// SecurityService tracks authentication attempts and decides lockouts.
type SecurityService interface {
	RecordAttempt(ctx context.Context, eventType, identifier, ip string, success bool, reason string) error
	IsBlocked(ctx context.Context, identifier, ip string) (bool, error)
}

type securityService struct {
	repo   SecurityRepo
	config SecurityConfig
	clock  types.Clock
	logger *slog.Logger
}

// NewSecurityService creates a SecurityService backed by the given repository.
func NewSecurityService(repo SecurityRepo, config SecurityConfig, clock types.Clock, logger *slog.Logger) SecurityService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &securityService{
		repo:   repo,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// RecordAttempt logs an authentication event for lockout accounting. Called
// on both success and failure.
func (s *securityService) RecordAttempt(ctx context.Context, eventType, identifier, ip string, success bool, reason string) error {
	event := &types.SecurityEvent{
		EventType:     eventType,
		Identifier:    identifier,
		IPAddress:     ip,
		AttemptedAt:   s.clock.Now(),
		Success:       success,
		FailureReason: reason,
	}
	if err := s.repo.LogAttempt(ctx, event); err != nil {
		// Recording failures must never block the auth flow itself.
		s.logger.Error("failed to record security event",
			"event_type", eventType,
			"error", err,
		)
		return err
	}
	return nil
}

// IsBlocked reports whether the identifier or the source IP has exceeded its
// failure threshold within the window.
func (s *securityService) IsBlocked(ctx context.Context, identifier, ip string) (bool, error) {
	since := s.clock.Now().Add(-s.config.WindowDuration)

	if identifier != "" {
		count, err := s.repo.CountRecentFailuresByIdentifier(ctx, identifier, since)
		if err != nil {
			return false, err
		}
		if count >= s.config.IdentifierBlockThreshold {
			s.logger.Warn("identifier blocked by failure threshold",
				"identifier", identifier,
				"failures", count,
			)
			return true, nil
		}
	}

	if ip != "" {
		count, err := s.repo.CountRecentFailuresByIP(ctx, ip, since)
		if err != nil {
			return false, err
		}
		if count >= s.config.IPBlockThreshold {
			s.logger.Warn("ip blocked by failure threshold",
				"ip", ip,
				"failures", count,
			)
			return true, nil
		}
	}

	return false, nil
}
