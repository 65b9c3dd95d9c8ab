// Package auth holds the credential primitives of the account service:
// password hashing, single-use reset tokens, signed session tokens and
// role checks. Nothing in here touches storage or the network.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// DefaultHashCost is the bcrypt work factor used for stored passwords.
const DefaultHashCost = 12

// Hasher hashes and verifies passwords with bcrypt. The salt is embedded in
// the produced hash.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given cost, falling back to
// DefaultHashCost when cost is outside bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &Hasher{cost: cost}
}

// MaxPasswordBytes is the longest plaintext bcrypt accepts.
const MaxPasswordBytes = 72

// Hash returns the bcrypt hash of plaintext. A plaintext longer than
// MaxPasswordBytes is a validation failure, not an internal error.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.Wrap(err, domain.KindValidationFailed, fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A malformed hash is a mismatch.
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
