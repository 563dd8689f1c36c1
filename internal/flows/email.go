package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
)

// EmailChangeRequest is an authenticated request to move to NewEmail.
type EmailChangeRequest struct {
	UserID   string
	Password string
	NewEmail string
}

// RequestEmailChange re-checks the password and mails a confirmation link to
// the new address. The link token is not ledgered, so it survives logout.
// An address that already belongs to another user gets no mail, and the
// caller still sees success.
func (s *Service) RequestEmailChange(ctx context.Context, req EmailChangeRequest) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.requestEmailChange(ctx, req)
	s.record(ctx, EventEmailChangeReq, req.UserID, "", err, nil)
	return err
}

func (s *Service) requestEmailChange(ctx context.Context, req EmailChangeRequest) error {
	user, err := s.userByID(ctx, req.UserID)
	if err != nil {
		return err
	}
	if err := s.VerifyForSensitiveAction(ctx, user, req.Password); err != nil {
		if errors.Is(err, s.deps.Errors.AccountLockedOut) {
			s.record(ctx, EventSensitiveLockout, user.ID, "", err, nil)
		}
		return err
	}

	newEmail := strings.TrimSpace(req.NewEmail)
	if v := account.ValidateEmail(newEmail); v != nil {
		v.Fields["new_email"] = v.Fields["email"]
		delete(v.Fields, "email")
		return v
	}
	if account.NormalizeEmail(newEmail) == account.NormalizeEmail(user.Email) {
		return account.NewValidationError("new_email", "This is already your email address.")
	}

	_, err = s.deps.Accounts.GetByEmail(ctx, newEmail)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, account.ErrNotFound):
		return s.backend(err)
	}

	token, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindChangeEmail, ledger.WithEmail(newEmail))
	if err != nil {
		return s.backend(err)
	}
	link := s.changeEmailLink(user.ID, token.Raw)
	validFor := s.deps.Ledger.Lifetime(jwt.KindChangeEmail)
	m := s.mail()
	s.enqueue(ctx, "send_change_email", func(ctx context.Context) error {
		return m.SendChangeEmail(ctx, newEmail, link, validFor)
	})
	return nil
}

// ConfirmEmailChange consumes a change-email token bound to userID and moves
// the account to the address the token carries.
func (s *Service) ConfirmEmailChange(ctx context.Context, userID, token string) (account.User, error) {
	if err := s.ready(); err != nil {
		return account.User{}, err
	}
	user, oldEmail, err := s.confirmEmailChange(ctx, userID, token)
	s.record(ctx, EventEmailChange, userID, "", err, nil)
	if err != nil {
		return account.User{}, err
	}
	s.notify(ctx, oldEmail, "Email Changed", "The email address on your account was changed to "+user.Email+".")
	return user, nil
}

func (s *Service) confirmEmailChange(ctx context.Context, userID, token string) (account.User, string, error) {
	var oldEmail string
	user, err := s.consumeToken(ctx, token, jwt.KindChangeEmail, userID, func(u account.User) error {
		oldEmail = u.Email
		return nil
	})
	if err != nil {
		return account.User{}, "", err
	}
	if user.Email == "" {
		return account.User{}, "", s.deps.Errors.InvalidToken
	}

	err = s.deps.Accounts.UpdateEmail(ctx, user.ID, user.Email)
	if errors.Is(err, account.ErrDuplicateEmail) {
		return account.User{}, "", account.NewValidationError("email", "A user with this email already exists.")
	}
	if err != nil {
		return account.User{}, "", s.backend(err)
	}
	return user, oldEmail, nil
}
