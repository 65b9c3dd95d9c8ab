package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSessionExpired = errors.New("session token expired")
	ErrSessionInvalid = errors.New("session token invalid")
)

// DefaultSessionTTL applies when no lifetime is configured.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionClaims is the signed payload of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// SessionToken is a signed token together with its absolute expiry, which
// callers reuse for cookie metadata.
type SessionToken struct {
	Value     string
	ExpiresAt time.Time
}

// Sessions issues and verifies stateless HS256 session tokens. There is no
// server-side store, so a token stays valid until it expires.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns an issuer signing with secret.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of s using now as its time source.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	clone := *s
	clone.now = now
	return &clone
}

// Issue signs a token for userID.
func (s *Sessions) Issue(userID string) (SessionToken, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Value: signed, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}, nil
}

// Verify checks signature, algorithm and expiry and returns the user id.
func (s *Sessions) Verify(token string) (string, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrSessionInvalid
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", ErrSessionInvalid
	}
	return claims.UserID, nil
}
