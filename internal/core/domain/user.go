package domain

import "time"

// Role is the coarse permission tier of an account.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every role a user can hold.
var Roles = []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ResetPurpose selects which reset-token pair on a User is addressed.
type ResetPurpose string

const (
	ResetPassword ResetPurpose = "password"
	ResetEmail    ResetPurpose = "email"
)

// User is the persisted account. Secrets and visibility flags never leave
// the service in JSON form.
type User struct {
	ID        string    `json:"id"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	BirthDate time.Time `json:"birthDate"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	PasswordHash string `json:"-"`
	Active       bool   `json:"-"`

	PasswordResetToken          string     `json:"-"`
	PasswordResetTokenExpiresIn *time.Time `json:"-"`
	EmailResetToken             string     `json:"-"`
	EmailResetTokenExpiresIn    *time.Time `json:"-"`
}

// ResetToken returns the stored digest and expiry for the given purpose.
// ok is false when either half of the pair is missing.
func (u *User) ResetToken(purpose ResetPurpose) (digest string, expiresAt time.Time, ok bool) {
	switch purpose {
	case ResetPassword:
		digest = u.PasswordResetToken
		if u.PasswordResetTokenExpiresIn != nil {
			expiresAt = *u.PasswordResetTokenExpiresIn
		}
	case ResetEmail:
		digest = u.EmailResetToken
		if u.EmailResetTokenExpiresIn != nil {
			expiresAt = *u.EmailResetTokenExpiresIn
		}
	}
	return digest, expiresAt, digest != "" && !expiresAt.IsZero()
}

// ProfileUpdate carries the allowlisted profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Firstname *string
	Lastname  *string
	BirthDate *time.Time
}

// Empty reports whether no field is set.
func (p ProfileUpdate) Empty() bool {
	return p.Firstname == nil && p.Lastname == nil && p.BirthDate == nil
}

// CredentialChange is applied atomically when a reset token is consumed.
// Exactly one of the fields is expected to be non-empty.
type CredentialChange struct {
	PasswordHash string
	Email        string
}

// Session is the result of a successful authentication step.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}
