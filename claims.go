package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tells what a session token may be used for
type TokenKind string

const (
	TokenKindAccess            TokenKind = "ACCESS"
	TokenKindRefresh           TokenKind = "REFRESH"
	TokenKindEmailVerification TokenKind = "EMAIL_VERIFICATION"
)

// Valid reports whether the kind is one the codec issues
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindEmailVerification:
		return true
	}
	return false
}

// ExtraClaims are the identity claims embedded in ACCESS tokens
type ExtraClaims struct {
	Email string
	Role  string
}

// SessionClaims is the signed claim bundle of a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	Kind  TokenKind `json:"type"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
}

// AccountID returns the subject parsed as an account id
func (c *SessionClaims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the issuance time
func (c *SessionClaims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

// TokenID returns the per issuance identifier
func (c *SessionClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil {
		return
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
