package types

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the system time.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// SecretString wraps a sensitive string so it cannot leak into logs or
// fmt output. The raw value is only reachable through Value().
type SecretString string

// String implements fmt.Stringer with a redacted placeholder.
func (SecretString) String() string { return "[REDACTED]" }

// Value returns the underlying secret.
func (s SecretString) Value() string { return string(s) }
