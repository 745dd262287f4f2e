package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// PasswordCheck reports which strength requirements a candidate password
// satisfies. All four must hold for the password to be accepted. The struct
// is returned to clients so sign-up forms can show per-requirement feedback.
type PasswordCheck struct {
	MinLength    bool `json:"min_length"`
	HasUppercase bool `json:"has_uppercase"`
	HasNumber    bool `json:"has_number"`
	HasSpecial   bool `json:"has_special"`
}

// Valid reports whether every requirement is met.
func (c PasswordCheck) Valid() bool {
	return c.MinLength && c.HasUppercase && c.HasNumber && c.HasSpecial
}

// CheckPassword evaluates the strength requirements for a candidate password.
// It is a pure function: the empty string fails every flag.
func CheckPassword(password string) PasswordCheck {
	check := PasswordCheck{
		MinLength: len(password) >= minPasswordLength,
	}
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			check.HasUppercase = true
		case unicode.IsDigit(r):
			check.HasNumber = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			check.HasSpecial = true
		}
	}
	return check
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
