package ports

import (
	"context"
	"time"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// FilterOp is a comparison applied by a listing filter.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
)

// FilterCondition compares one user field against a value. Value is either
// a string or a time.Time depending on the field.
type FilterCondition struct {
	Field string
	Op    FilterOp
	Value any
}

// SortField orders a listing by Field, descending when Desc is set.
type SortField struct {
	Field string
	Desc  bool
}

// ListUsersFilter carries an already validated listing query. Field names
// are the public JSON names of domain.User.
type ListUsersFilter struct {
	Conditions      []FilterCondition
	Sort            []SortField
	Fields          []string // projection; empty = every public field
	IncludeInactive bool
	Page            int // 1-based
	Limit           int
}

// UserRepository defines persistence operations for user accounts.
//
// Single-record lookups return inactive users too; only List hides them by
// default. Lookups return the password hash so credentials can be verified.
type UserRepository interface {
	// Create inserts user and returns it with its assigned ID.
	// A username or email collision returns domain.ErrDuplicateKey.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// FindByResetToken returns the user whose reset digest for purpose
	// matches and whose expiry is not before now.
	FindByResetToken(ctx context.Context, purpose domain.ResetPurpose, digest string, now time.Time) (*domain.User, error)
	// List returns a page of users matching filter and the total count.
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, int64, error)

	SetActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.User, error)

	// SetResetToken stores a digest and its expiry together.
	SetResetToken(ctx context.Context, id string, purpose domain.ResetPurpose, digest string, expiresAt time.Time) error
	// ClearResetToken removes the digest and its expiry together.
	ClearResetToken(ctx context.Context, id string, purpose domain.ResetPurpose) error
	// ConsumeResetToken applies change and clears the token pair in one
	// conditional write. It returns domain.ErrTokenExpiredOrInvalid when the
	// digest no longer matches or has expired, so a token works only once.
	ConsumeResetToken(ctx context.Context, id string, purpose domain.ResetPurpose, digest string, now time.Time, change domain.CredentialChange) (*domain.User, error)

	Delete(ctx context.Context, id string) error
}
