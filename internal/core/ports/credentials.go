package ports

import (
	"context"

	"github.com/hsyntes/authentication-authorization-security/internal/core/auth"
)

// PasswordHasher hashes and checks passwords. Implementations may queue the
// work, so both calls honour ctx.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) (bool, error)
}

// SessionIssuer signs and verifies session tokens.
type SessionIssuer interface {
	Issue(userID string) (auth.SessionToken, error)
	Verify(token string) (string, error)
}

// MailMessage is a plain-text email.
type MailMessage struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}
