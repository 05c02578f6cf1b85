// Package auth holds the session credential and talks to the auth collaborator.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidCredential is returned when a token cannot be decoded to a
// subject, or is already expired. It requires a fresh login.
var ErrInvalidCredential = errors.New("invalid credential")

// Credential is a decoded bearer token.
type Credential struct {
	Token     string
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the credential is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Decode extracts subject and expiry from a JWT. The signature is not
// checked; the client holds no key and the collaborators verify it.
func Decode(token string, now time.Time) (*Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	c := &Credential{Token: token, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	if c.Expired(now) {
		return nil, fmt.Errorf("%w: expired at %s", ErrInvalidCredential, c.ExpiresAt.Format(time.RFC3339))
	}
	return c, nil
}
