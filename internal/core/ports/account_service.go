package ports

import (
	"context"
	"time"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// SignupInput is the DTO passed from the transport layer to Signup.
type SignupInput struct {
	Firstname       string    `validate:"required,min=2"`
	Lastname        string    `validate:"required,min=2"`
	Username        string    `validate:"required,max=64"`
	Email           string    `validate:"required,email"`
	BirthDate       time.Time `validate:"required"`
	Password        string    `validate:"required,min=8,max=72"`
	PasswordConfirm string    `validate:"required,eqfield=Password"`
}

// LoginInput carries an email address or a username plus a password.
type LoginInput struct {
	Identifier string
	Password   string
}

// ResetPasswordInput carries the emailed token and the new password.
type ResetPasswordInput struct {
	Token           string
	Password        string `validate:"required,min=8,max=72"`
	PasswordConfirm string `validate:"required,eqfield=Password"`
}

// UpdatePasswordInput changes the password of an authenticated user.
type UpdatePasswordInput struct {
	CurrentPassword string
	Password        string `validate:"required,min=8,max=72"`
	PasswordConfirm string `validate:"omitempty,eqfield=Password"`
}

// ListUsersInput is the raw listing query string.
type ListUsersInput struct {
	Query map[string][]string
}

// ListUsersResult is returned by ListUsers.
type ListUsersResult struct {
	Users      []*domain.User
	Fields     []string
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// AccountService defines the account lifecycle use cases.
//
// Reset links are built by appending the plaintext token to linkPrefix,
// which the transport layer derives from the incoming request.
type AccountService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.Session, error)
	Login(ctx context.Context, in LoginInput) (*domain.Session, error)
	ForgotPassword(ctx context.Context, email, linkPrefix string) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) (*domain.Session, error)
	ChangeEmail(ctx context.Context, user *domain.User, linkPrefix string) error
	ResetEmail(ctx context.Context, token, email string) (*domain.Session, error)
	UpdatePassword(ctx context.Context, user *domain.User, in UpdatePasswordInput) (*domain.Session, error)
	// UpdateProfile applies a raw JSON body restricted to firstname,
	// lastname and birthDate.
	UpdateProfile(ctx context.Context, user *domain.User, fields map[string]any) (*domain.User, error)
	Deactivate(ctx context.Context, user *domain.User, currentPassword string) error
	Delete(ctx context.Context, user *domain.User, currentPassword string) error
	ListUsers(ctx context.Context, in ListUsersInput) (*ListUsersResult, error)
	// GetUser resolves inactive accounts too; callers check Active.
	GetUser(ctx context.Context, username string) (*domain.User, error)
	// Authenticate verifies a session token and loads its user.
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}
