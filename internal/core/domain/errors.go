package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error. The uniform responder switches on it.
type Kind string

const (
	KindValidationFailed      Kind = "VALIDATION_FAILED"
	KindDuplicateKey          Kind = "DUPLICATE_KEY"
	KindNotFound              Kind = "NOT_FOUND"
	KindBadRequest            Kind = "BAD_REQUEST"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindForbidden             Kind = "FORBIDDEN"
	KindTokenExpiredOrInvalid Kind = "TOKEN_EXPIRED_OR_INVALID"
	KindPasswordUnchanged     Kind = "PASSWORD_UNCHANGED"
	KindEmailDeliveryFailed   Kind = "EMAIL_DELIVERY_FAILED"
	KindInternal              Kind = "INTERNAL_ERROR"
)

var kindStatus = map[Kind]int{
	KindValidationFailed:      http.StatusUnprocessableEntity,
	KindDuplicateKey:          http.StatusConflict,
	KindNotFound:              http.StatusNotFound,
	KindBadRequest:            http.StatusBadRequest,
	KindUnauthorized:          http.StatusUnauthorized,
	KindForbidden:             http.StatusForbidden,
	KindTokenExpiredOrInvalid: http.StatusBadRequest,
	KindPasswordUnchanged:     http.StatusBadRequest,
	KindEmailDeliveryFailed:   http.StatusInternalServerError,
	KindInternal:              http.StatusInternalServerError,
}

// Error is the tagged error every account operation fails with.
// Message is safe to show to callers; Err is the internal cause, if any.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// NewError builds an Error of the given kind with a user-safe message.
func NewError(kind Kind, message string) *Error {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// Wrap attaches an internal cause to a new Error.
func Wrap(err error, kind Kind, message string) *Error {
	e := NewError(kind, message)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrDuplicateKey          = NewError(KindDuplicateKey, "This user is already in use.")
	ErrUserNotFound          = NewError(KindNotFound, "User not found.")
	ErrBadRequest            = NewError(KindBadRequest, "bad request")
	ErrUnauthorized          = NewError(KindUnauthorized, "You are not logged in. Please log in.")
	ErrForbidden             = NewError(KindForbidden, "You do not have permission to perform this action.")
	ErrTokenExpiredOrInvalid = NewError(KindTokenExpiredOrInvalid, "Reset token is invalid or has expired.")
	ErrPasswordUnchanged     = NewError(KindPasswordUnchanged, "The new password cannot be the same as the current password.")
	ErrEmailDeliveryFailed   = NewError(KindEmailDeliveryFailed, "Token couldn't be sent to your email address.")
	ErrInternal              = NewError(KindInternal, "internal server error")
)
