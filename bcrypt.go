package identity

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used for stored credentials
const DefaultBcryptCost = 12

// BcryptHasher hashes passwords with bcrypt at a fixed cost
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher, cost falls back to the build default
// when outside the bcrypt range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return BcryptHasher{cost: cost}
}

// Cost returns the configured work factor
func (h BcryptHasher) Cost() int {
	if h.cost == 0 {
		return passwordHashCost()
	}
	return h.cost
}

// HashPassword will generate a password hash
func (h BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost())
	return string(hash), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPassword returns a throwaway password nobody knows
func RandomPassword() string {
	return uuid.NewString() + uuid.NewString()
}

// dummyHash is compared against when the account does not exist so both
// login branches pay for a bcrypt comparison.
func dummyHash(h PasswordHasher) string {
	hash, err := h.HashPassword(RandomPassword())
	if err != nil {
		return ""
	}
	return hash
}
