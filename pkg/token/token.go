// Package token extracts claims from the session token without verifying
// it. The client treats the token as an opaque credential minted by the
// auth service; parsing only recovers the local user identity and expiry.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the session token claims the client cares about
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

// SessionInfo holds the identity extracted from a session token
type SessionInfo struct {
	UserID    uuid.UUID
	Username  string
	ExpiresAt time.Time
}

// Parse extracts session info from a token string. The signature is not
// checked here; the backend rejects forged tokens at connection time.
func Parse(tokenString string) (*SessionInfo, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	info := &SessionInfo{
		UserID:   claims.UserID,
		Username: claims.Username,
	}

	if info.UserID == uuid.Nil && claims.Subject != "" {
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("token subject is not a user id: %w", err)
		}
		info.UserID = id
	}
	if info.UserID == uuid.Nil {
		return nil, fmt.Errorf("session token carries no user identity")
	}

	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info, nil
}

// ExpiresWithin reports whether the token expires within d. Tokens without
// an expiry claim never report as expiring.
func (s *SessionInfo) ExpiresWithin(d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(s.ExpiresAt) < d
}
