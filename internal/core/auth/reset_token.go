package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// ResetTokenTTL is how long an emailed reset link stays usable.
const ResetTokenTTL = 5 * time.Minute

const resetTokenBytes = 32

// ResetToken is a freshly minted reset secret. Plain goes to the user,
// Digest and ExpiresAt are persisted.
type ResetToken struct {
	Plain     string
	Digest    string
	ExpiresAt time.Time
}

// ResetTokens mints and verifies single-use reset tokens.
type ResetTokens struct {
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// ResetOption customises ResetTokens.
type ResetOption func(*ResetTokens)

// WithResetClock overrides the time source.
func WithResetClock(now func() time.Time) ResetOption {
	return func(r *ResetTokens) { r.now = now }
}

// WithResetRandom overrides the entropy source.
func WithResetRandom(random io.Reader) ResetOption {
	return func(r *ResetTokens) { r.random = random }
}

// NewResetTokens returns a generator using ResetTokenTTL.
func NewResetTokens(opts ...ResetOption) *ResetTokens {
	r := &ResetTokens{ttl: ResetTokenTTL, now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate returns a new token with 32 bytes of entropy.
func (r *ResetTokens) Generate() (ResetToken, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(r.random, b); err != nil {
		return ResetToken{}, fmt.Errorf("generate reset token: %w", err)
	}
	plain := hex.EncodeToString(b)
	return ResetToken{
		Plain:     plain,
		Digest:    DigestResetToken(plain),
		ExpiresAt: r.now().Add(r.ttl).UTC(),
	}, nil
}

// Verify reports whether presented hashes to storedDigest and now is not
// past expiresAt.
func (r *ResetTokens) Verify(presented, storedDigest string, expiresAt, now time.Time) bool {
	if presented == "" || storedDigest == "" || expiresAt.IsZero() {
		return false
	}
	digest := DigestResetToken(presented)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) != 1 {
		return false
	}
	return !now.After(expiresAt)
}

// DigestResetToken is the one-way transform applied before a token is stored
// or looked up.
func DigestResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
