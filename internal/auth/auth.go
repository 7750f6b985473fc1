// Package auth provides the login gate in front of the dashboard API.
// The collections never see who is logged in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Demo credential used when no users are configured
const (
	DemoEmail    = "admin@example.com"
	DemoPassword = "admin123@"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionExpired is returned for a session past its TTL
	ErrSessionExpired = errors.New("session expired")
	// ErrUnknownSession is returned for a token that was never issued or was revoked
	ErrUnknownSession = errors.New("unknown session")
)

// Authenticator verifies login credentials
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) error
}

// Credential is an email with its bcrypt password hash
type Credential struct {
	Email        string
	PasswordHash string
}

// StaticAuthenticator checks credentials against a fixed list
type StaticAuthenticator struct {
	hashes map[string][]byte
	// dummy is compared for unknown emails so both paths cost one bcrypt check
	dummy []byte
}

// NewStaticAuthenticator creates an authenticator for creds. With no
// credentials the demo account is enabled.
func NewStaticAuthenticator(creds []Credential, logger *slog.Logger) (*StaticAuthenticator, error) {
	a := &StaticAuthenticator{hashes: make(map[string][]byte)}

	for _, c := range creds {
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, fmt.Errorf("invalid password hash for %s: %w", c.Email, err)
		}
		a.hashes[normalizeEmail(c.Email)] = []byte(c.PasswordHash)
	}

	if len(a.hashes) == 0 {
		hash, err := HashPassword(DemoPassword)
		if err != nil {
			return nil, err
		}
		a.hashes[DemoEmail] = []byte(hash)
		if logger != nil {
			logger.Warn("no users configured, demo credential enabled", "email", DemoEmail)
		}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	a.dummy = dummy

	return a, nil
}

// Authenticate checks email and password
func (a *StaticAuthenticator) Authenticate(ctx context.Context, email, password string) error {
	hash, ok := a.hashes[normalizeEmail(email)]
	if !ok {
		bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
