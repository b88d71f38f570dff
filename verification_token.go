package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// verificationTokenBytes is the entropy of a raw verification token (256 bits)
const verificationTokenBytes = 32

// GenerateVerificationToken returns a random, URL safe token value
func GenerateVerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashVerificationToken returns the digest stored in place of the raw value
func HashVerificationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newVerificationToken builds a token record and returns it with its raw value
func newVerificationToken(kind VerificationKind, accountID uuid.UUID, now time.Time, ttl time.Duration) (*VerificationToken, string, error) {
	raw, err := GenerateVerificationToken()
	if err != nil {
		return nil, "", err
	}

	record := &VerificationToken{
		ID:        uuid.New(),
		Kind:      kind,
		TokenHash: HashVerificationToken(raw),
		AccountID: accountID,
		ExpiresAt: now.Add(ttl).UTC(),
		CreatedAt: now.UTC(),
	}

	return record, raw, nil
}
