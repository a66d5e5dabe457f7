// Package auth handles account credentials and JWT session tokens.
package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"expenseflow/internal/core"
)

const (
	MinUsernameLen = 6
	MaxUsernameLen = 10
	MinPasswordLen = 7
	MaxPasswordLen = 10

	passwordSpecials = "!@#$%^&*"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// HashPassword returns the bcrypt hash to store for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateUsername enforces the signup rules: 6-10 alphanumeric
// characters containing at least one letter and one digit.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return &core.ValidationError{
			Field:  "username",
			Reason: fmt.Sprintf("must be %d-%d characters", MinUsernameLen, MaxUsernameLen),
		}
	}
	var hasLetter, hasDigit bool
	for _, r := range username {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		default:
			return &core.ValidationError{Field: "username", Reason: "only letters and digits allowed"}
		}
	}
	if !hasLetter || !hasDigit {
		return &core.ValidationError{Field: "username", Reason: "needs at least one letter and one digit"}
	}
	return nil
}

// ValidatePassword enforces the signup rules: 7-10 characters from
// letters, digits and !@#$%^&*, containing at least one digit and one
// special character.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return &core.ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be %d-%d characters", MinPasswordLen, MaxPasswordLen),
		}
	}
	var hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return &core.ValidationError{Field: "password", Reason: "contains a disallowed character"}
		}
	}
	if !hasDigit || !hasSpecial {
		return &core.ValidationError{
			Field:  "password",
			Reason: "needs at least one digit and one of " + passwordSpecials,
		}
	}
	return nil
}

// ValidateEmail does a shape check only; no verification mail is sent.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &core.ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	return nil
}
