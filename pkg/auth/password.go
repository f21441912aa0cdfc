package auth

import (
	"crypto/subtle"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/aihub-platform/backend/pkg/apperr"
)

// ValidatePasswordStrength enforces spec §8's boundary behavior: a
// zero-length password, or one missing character class among
// upper/lower/digit/special, fails with Validation naming the specific
// class. Checked once, here, so every caller of HashPassword gets it for
// free rather than duplicating the check at each call site.
func ValidatePasswordStrength(plaintext string) error {
	if len(plaintext) == 0 {
		return apperr.ValidationField("password", "password must not be empty")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return apperr.ValidationField("password", "password must contain an uppercase letter")
	case !hasLower:
		return apperr.ValidationField("password", "password must contain a lowercase letter")
	case !hasDigit:
		return apperr.ValidationField("password", "password must contain a digit")
	case !hasSpecial:
		return apperr.ValidationField("password", "password must contain a special character")
	}
	return nil
}

// HashPassword validates the password's strength, then bcrypt-hashes it for
// storage. New accounts and password changes always produce a bcrypt hash,
// per original_source/backend/app/core/security.py.
func HashPassword(plaintext string) (string, error) {
	if err := ValidatePasswordStrength(plaintext); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks plaintext against a stored hash. Stored hashes
// beginning with "$2" (bcrypt's prefix family) are verified with bcrypt;
// any other stored value is treated as legacy plaintext and compared in
// constant time, preserving the dual verification path the original
// Python service carries for pre-bcrypt-migration accounts.
func VerifyPassword(plaintext, stored string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(plaintext), []byte(stored)) == 1
}
