package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsyntes/authentication-authorization-security/internal/core/auth"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/metrics"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/validate"
)

// profileFields are the only keys UpdateProfile accepts.
var profileFields = map[string]bool{"firstname": true, "lastname": true, "birthDate": true}

// protectedFields have dedicated flows and are refused by UpdateProfile.
var protectedFields = []string{"password", "passwordConfirm", "role"}

// AccountService implements signup, login, credential resets and the
// self-service profile operations.
type AccountService struct {
	repo     ports.UserRepository
	hasher   ports.PasswordHasher
	sessions ports.SessionIssuer
	mailer   ports.Mailer
	resets   *auth.ResetTokens
	validate *validate.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customises an AccountService.
type Option func(*AccountService)

// WithClock overrides the time source used for reset windows and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AccountService) { s.now = now }
}

func NewAccountService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	sessions ports.SessionIssuer,
	mailer ports.Mailer,
	logger zerolog.Logger,
	opts ...Option,
) *AccountService {
	s := &AccountService{
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
		mailer:   mailer,
		validate: validate.New(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resets = auth.NewResetTokens(auth.WithResetClock(s.now))
	return s
}

// Signup creates an account and opens a session for it.
func (s *AccountService) Signup(ctx context.Context, in ports.SignupInput) (*domain.Session, error) {
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.Username = normalize(in.Username)
	in.Email = normalize(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return nil, s.record("signup", invalid(err))
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, s.record("signup", err)
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Firstname:    in.Firstname,
		Lastname:     in.Lastname,
		Username:     in.Username,
		Email:        in.Email,
		BirthDate:    in.BirthDate.UTC(),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, s.record("signup", err)
	}

	s.logger.Info().Str("user_id", created.ID).Str("username", created.Username).Msg("user signed up")
	return s.openSession("signup", created)
}

// Login resolves the identifier as an email when it contains "@" and as a
// username otherwise. A successful login reactivates a deactivated account.
func (s *AccountService) Login(ctx context.Context, in ports.LoginInput) (*domain.Session, error) {
	identifier := normalize(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, s.record("login", domain.NewError(domain.KindBadRequest, "Please type your email address or username and password."))
	}

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.repo.FindByEmail(ctx, identifier)
	} else {
		user, err = s.repo.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, s.record("login", domain.NewError(domain.KindNotFound, "That user doesn't exist."))
		}
		return nil, s.record("login", err)
	}

	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.record("login", err)
	}
	if !ok {
		return nil, s.record("login", domain.NewError(domain.KindUnauthorized, "Email or password is wrong."))
	}

	if !user.Active {
		if err := s.repo.SetActive(ctx, user.ID, true); err != nil {
			return nil, s.record("login", err)
		}
		user.Active = true
		s.logger.Info().Str("user_id", user.ID).Msg("account reactivated on login")
	}

	return s.openSession("login", user)
}

// ForgotPassword emails a password reset link to the account owning email.
func (s *AccountService) ForgotPassword(ctx context.Context, email, linkPrefix string) error {
	email = normalize(email)
	if email == "" {
		return s.record("forgot_password", domain.NewError(domain.KindBadRequest, "Please type your email address."))
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return s.record("forgot_password", err)
	}

	err = s.sendResetLink(ctx, user, domain.ResetPassword, ports.MailMessage{
		To:      user.Email,
		Subject: "Reset Password",
		Text:    "Please click on the following link to reset your password. %s",
	}, linkPrefix)
	return s.record("forgot_password", err)
}

// ResetPassword consumes a password reset token and sets a new password.
func (s *AccountService) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) (*domain.Session, error) {
	now := s.now().UTC()
	user, digest, err := s.redeemable(ctx, domain.ResetPassword, in.Token, now)
	if err != nil {
		return nil, s.record("reset_password", err)
	}

	if err := s.validate.Struct(in); err != nil {
		return nil, s.record("reset_password", invalid(err))
	}

	same, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.record("reset_password", err)
	}
	if same {
		return nil, s.record("reset_password", domain.ErrPasswordUnchanged)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, s.record("reset_password", err)
	}

	updated, err := s.repo.ConsumeResetToken(ctx, user.ID, domain.ResetPassword, digest, now, domain.CredentialChange{PasswordHash: hash})
	if err != nil {
		return nil, s.record("reset_password", err)
	}

	s.logger.Info().Str("user_id", updated.ID).Msg("password reset")
	return s.openSession("reset_password", updated)
}

// ChangeEmail emails an email-change link to the current address of user.
func (s *AccountService) ChangeEmail(ctx context.Context, user *domain.User, linkPrefix string) error {
	err := s.sendResetLink(ctx, user, domain.ResetEmail, ports.MailMessage{
		To:      user.Email,
		Subject: "Reset Email Address",
		Text:    "Please click the link to set a new email address. %s",
	}, linkPrefix)
	return s.record("change_email", err)
}

// ResetEmail consumes an email reset token and sets the new address.
func (s *AccountService) ResetEmail(ctx context.Context, token, email string) (*domain.Session, error) {
	now := s.now().UTC()
	user, digest, err := s.redeemable(ctx, domain.ResetEmail, token, now)
	if err != nil {
		return nil, s.record("reset_email", err)
	}

	email = normalize(email)
	if email == "" {
		return nil, s.record("reset_email", domain.NewError(domain.KindBadRequest, "Please type a valid email address."))
	}
	if err := s.validate.Var("email", email, "email"); err != nil {
		return nil, s.record("reset_email", invalid(err))
	}

	updated, err := s.repo.ConsumeResetToken(ctx, user.ID, domain.ResetEmail, digest, now, domain.CredentialChange{Email: email})
	if err != nil {
		return nil, s.record("reset_email", err)
	}

	s.logger.Info().Str("user_id", updated.ID).Msg("email address changed")
	return s.openSession("reset_email", updated)
}

// UpdatePassword changes the password of an authenticated user and issues a
// fresh session.
func (s *AccountService) UpdatePassword(ctx context.Context, user *domain.User, in ports.UpdatePasswordInput) (*domain.Session, error) {
	if in.Password == "" && in.CurrentPassword != "" {
		return nil, s.record("update_password", domain.NewError(domain.KindForbidden, "Please set a new password."))
	}
	if err := s.confirmPassword(ctx, user, in.CurrentPassword); err != nil {
		return nil, s.record("update_password", err)
	}

	if err := s.validate.Struct(in); err != nil {
		return nil, s.record("update_password", invalid(err))
	}

	same, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.record("update_password", err)
	}
	if same {
		return nil, s.record("update_password", domain.ErrPasswordUnchanged)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, s.record("update_password", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, s.record("update_password", err)
	}

	updated := *user
	updated.PasswordHash = hash
	s.logger.Info().Str("user_id", user.ID).Msg("password updated")
	return s.openSession("update_password", &updated)
}

// UpdateProfile applies the allowlisted fields of a raw request body.
func (s *AccountService) UpdateProfile(ctx context.Context, user *domain.User, fields map[string]any) (*domain.User, error) {
	for _, key := range protectedFields {
		if _, ok := fields[key]; ok {
			return nil, s.record("update_profile", domain.NewError(domain.KindBadRequest, "You cannot update these fields."))
		}
	}
	for key := range fields {
		if !profileFields[key] {
			return nil, s.record("update_profile", domain.NewError(domain.KindBadRequest, "You are not allowed to update this/these field(s)."))
		}
	}

	update, err := s.profileUpdate(fields)
	if err != nil {
		return nil, s.record("update_profile", err)
	}
	if update.Empty() {
		return nil, s.record("update_profile", domain.NewError(domain.KindBadRequest, "There is nothing to update."))
	}

	updated, err := s.repo.UpdateProfile(ctx, user.ID, update)
	if err != nil {
		return nil, s.record("update_profile", err)
	}
	return updated, s.record("update_profile", nil)
}

// Deactivate hides the account from listings until its owner logs in again.
func (s *AccountService) Deactivate(ctx context.Context, user *domain.User, currentPassword string) error {
	if err := s.confirmPassword(ctx, user, currentPassword); err != nil {
		return s.record("deactivate", err)
	}
	if err := s.repo.SetActive(ctx, user.ID, false); err != nil {
		return s.record("deactivate", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("account deactivated")
	return s.record("deactivate", nil)
}

// Delete removes the account permanently.
func (s *AccountService) Delete(ctx context.Context, user *domain.User, currentPassword string) error {
	if err := s.confirmPassword(ctx, user, currentPassword); err != nil {
		return s.record("delete", err)
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return s.record("delete", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("account deleted")
	return s.record("delete", nil)
}

// ListUsers returns a page of users shaped by the query string.
func (s *AccountService) ListUsers(ctx context.Context, in ports.ListUsersInput) (*ports.ListUsersResult, error) {
	filter, err := parseListQuery(in.Query)
	if err != nil {
		return nil, err
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, asDomain(err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	}
	return &ports.ListUsersResult{
		Users:      users,
		Fields:     filter.Fields,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// GetUser looks a user up by username.
func (s *AccountService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	username = normalize(username)
	if username == "" {
		return nil, domain.NewError(domain.KindBadRequest, "username is required")
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, asDomain(err)
	}
	return user, nil
}

// Authenticate verifies a session token and loads the user it names.
// Deactivated users still authenticate so they can delete their account.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	userID, err := s.sessions.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			return nil, domain.Wrap(err, domain.KindUnauthorized, "Authentication has expired. Please log in again.")
		}
		return nil, domain.Wrap(err, domain.KindUnauthorized, "Authentication failed.")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindUnauthorized, "The user belonging to this token no longer exists.")
		}
		return nil, asDomain(err)
	}
	return user, nil
}

// redeemable finds the user holding an unexpired reset token for purpose
// and returns it with the token digest.
func (s *AccountService) redeemable(ctx context.Context, purpose domain.ResetPurpose, token string, now time.Time) (*domain.User, string, error) {
	if token == "" {
		return nil, "", domain.ErrTokenExpiredOrInvalid
	}
	digest := auth.DigestResetToken(token)

	user, err := s.repo.FindByResetToken(ctx, purpose, digest, now)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", domain.ErrTokenExpiredOrInvalid
		}
		return nil, "", err
	}

	stored, expiresAt, ok := user.ResetToken(purpose)
	if !ok || !s.resets.Verify(token, stored, expiresAt, now) {
		return nil, "", domain.ErrTokenExpiredOrInvalid
	}
	return user, digest, nil
}

// sendResetLink stores a fresh reset token and emails its link. msg.Text is
// a format string receiving the link. If delivery fails the token is
// cleared again before the error is returned.
func (s *AccountService) sendResetLink(ctx context.Context, user *domain.User, purpose domain.ResetPurpose, msg ports.MailMessage, linkPrefix string) error {
	tok, err := s.resets.Generate()
	if err != nil {
		return err
	}
	if err := s.repo.SetResetToken(ctx, user.ID, purpose, tok.Digest, tok.ExpiresAt); err != nil {
		return err
	}

	msg.Text = fmt.Sprintf(msg.Text, linkPrefix+tok.Plain)
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.MailDeliveriesTotal.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("user_id", user.ID).Str("purpose", string(purpose)).Msg("reset email delivery failed")

		if clearErr := s.repo.ClearResetToken(context.WithoutCancel(ctx), user.ID, purpose); clearErr != nil {
			s.logger.Error().Err(clearErr).Str("user_id", user.ID).Msg("failed to clear reset token after delivery failure")
		}
		return domain.Wrap(err, domain.KindEmailDeliveryFailed, domain.ErrEmailDeliveryFailed.Message)
	}

	metrics.MailDeliveriesTotal.WithLabelValues("sent").Inc()
	s.logger.Info().Str("user_id", user.ID).Str("purpose", string(purpose)).Msg("reset link sent")
	return nil
}

// confirmPassword checks the current password of an authenticated user.
func (s *AccountService) confirmPassword(ctx context.Context, user *domain.User, current string) error {
	if current == "" {
		return domain.NewError(domain.KindForbidden, "Please confirm your password.")
	}
	ok, err := s.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.KindUnauthorized, "Wrong password.")
	}
	return nil
}

func (s *AccountService) profileUpdate(fields map[string]any) (domain.ProfileUpdate, error) {
	var update domain.ProfileUpdate

	for _, key := range []string{"firstname", "lastname"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		str, isString := raw.(string)
		if !isString {
			return update, domain.NewError(domain.KindValidationFailed, key+" must be a string")
		}
		str = strings.TrimSpace(str)
		if err := s.validate.Var(key, str, "required,min=2"); err != nil {
			return update, invalid(err)
		}
		if key == "firstname" {
			update.Firstname = &str
		} else {
			update.Lastname = &str
		}
	}

	if raw, ok := fields["birthDate"]; ok {
		str, _ := raw.(string)
		birthDate, err := parseDate(strings.TrimSpace(str))
		if err != nil {
			return update, domain.NewError(domain.KindValidationFailed, "birthDate must be a valid date")
		}
		update.BirthDate = &birthDate
	}
	return update, nil
}

func (s *AccountService) openSession(op string, user *domain.User) (*domain.Session, error) {
	tok, err := s.sessions.Issue(user.ID)
	if err != nil {
		return nil, s.record(op, err)
	}
	metrics.AccountOperationsTotal.WithLabelValues(op, "ok").Inc()
	return &domain.Session{Token: tok.Value, ExpiresAt: tok.ExpiresAt, User: user}, nil
}

// record records the outcome of op and converts foreign errors into internal
// domain errors. A nil err is recorded as success.
func (s *AccountService) record(op string, err error) error {
	if err == nil {
		metrics.AccountOperationsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
	err = asDomain(err)
	metrics.AccountOperationsTotal.WithLabelValues(op, string(domain.KindOf(err))).Inc()
	return err
}

func asDomain(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Wrap(err, domain.KindInternal, domain.ErrInternal.Message)
}

func invalid(err error) error {
	return domain.NewError(domain.KindValidationFailed, err.Error())
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
