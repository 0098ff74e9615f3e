package domain

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lowercases and trims an address and rejects anything that
// is not a bare addr-spec.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
