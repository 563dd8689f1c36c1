package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal/limiters"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
	"github.com/portunus-id/portunus/password"
)

// ChangePasswordRequest is an authenticated password change.
type ChangePasswordRequest struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// ChangePassword re-checks the current password, stores the new one, revokes
// every prior token and session and starts a fresh session.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*SessionResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	user, err := s.changePassword(ctx, req)
	s.record(ctx, EventPasswordChange, req.UserID, "", err, nil)
	if err != nil {
		return nil, err
	}

	sess, err := s.StartSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, user.Email, "Password Changed", "The password on your account was changed.")
	return sess, nil
}

func (s *Service) changePassword(ctx context.Context, req ChangePasswordRequest) (account.User, error) {
	user, err := s.userByID(ctx, req.UserID)
	if err != nil {
		return account.User{}, err
	}

	if err := s.VerifyForSensitiveAction(ctx, user, req.CurrentPassword); err != nil {
		if errors.Is(err, s.deps.Errors.AccountLockedOut) {
			s.record(ctx, EventSensitiveLockout, user.ID, "", err, nil)
		}
		return account.User{}, err
	}

	hash, err := s.validatedHash(req.NewPassword, user.Email, "new_password")
	if err != nil {
		return account.User{}, err
	}
	if err := s.deps.Accounts.UpdatePassword(ctx, user.ID, hash); err != nil {
		return account.User{}, s.backend(err)
	}
	user.PasswordHash = hash

	if err := s.revokeEverything(ctx, user.ID); err != nil {
		return account.User{}, err
	}
	return user, nil
}

// validatedHash applies the password policy and hashes pw. Policy messages
// are reported on field.
func (s *Service) validatedHash(pw, email, field string) (string, error) {
	if pw == "" {
		return "", account.NewValidationError(field, "This field is required.")
	}
	if msgs := s.deps.Passwords.Validate(pw, password.Attributes{Email: email}); len(msgs) > 0 {
		v := &account.ValidationError{}
		for _, m := range msgs {
			v.Add(field, m)
		}
		return "", v
	}
	hash, err := s.deps.Hasher.Hash(pw)
	if err != nil {
		return "", account.NewValidationError(field, err.Error())
	}
	return hash, nil
}

// RequestPasswordReset mails a reset link when the email belongs to a user.
// It reports success either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email, ip string) error {
	if err := s.ready(); err != nil {
		return err
	}
	email = account.NormalizeEmail(email)
	if v := account.ValidateEmail(email); v != nil {
		return v
	}

	if s.deps.ResetLimit != nil {
		if err := s.deps.ResetLimit.Allow(ctx, email, ip); err != nil {
			s.record(ctx, EventPasswordResetReq, "", "", err, map[string]string{"email": email})
			if errors.Is(err, limiters.ErrRequestRateLimited) {
				return s.deps.Errors.RateLimited
			}
			return s.backend(err)
		}
	}

	user, err := s.deps.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			s.deps.Log.Warn("password reset lookup failed", zap.Error(err))
		}
		s.record(ctx, EventPasswordResetReq, "", "", nil, map[string]string{"found": "false"})
		return nil
	}

	token, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindReset)
	if err != nil {
		s.deps.Log.Warn("password reset token issue failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}

	link := s.resetLink(user.ID, token.Raw)
	validFor := s.deps.Ledger.Lifetime(jwt.KindReset)
	to := user.Email
	s.enqueue(ctx, "send_password_reset", func(ctx context.Context) error {
		return s.mail().SendPasswordReset(ctx, to, link, validFor)
	})
	s.record(ctx, EventPasswordResetReq, user.ID, "", nil, nil)
	return nil
}

// CompletePasswordRequest consumes a reset token.
type CompletePasswordRequest struct {
	UserID      string
	Token       string
	NewPassword string
}

// CompletePasswordReset verifies the reset token against the user, consumes
// it exactly once, revokes every token, stores the new password and starts a
// fresh session. It also clears the login lockout for the email.
func (s *Service) CompletePasswordReset(ctx context.Context, req CompletePasswordRequest) (*SessionResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	user, err := s.completePasswordReset(ctx, req)
	s.record(ctx, EventPasswordReset, req.UserID, "", err, nil)
	if err != nil {
		return nil, err
	}
	return s.StartSession(ctx, user)
}

func (s *Service) completePasswordReset(ctx context.Context, req CompletePasswordRequest) (account.User, error) {
	var hash string
	user, err := s.consumeToken(ctx, req.Token, jwt.KindReset, req.UserID, func(user account.User) error {
		h, err := s.validatedHash(req.NewPassword, user.Email, "password")
		hash = h
		return err
	})
	if err != nil {
		return account.User{}, err
	}

	if err := s.revokeEverything(ctx, user.ID); err != nil {
		return account.User{}, err
	}
	if err := s.deps.Accounts.UpdatePassword(ctx, user.ID, hash); err != nil {
		return account.User{}, s.backend(err)
	}
	user.PasswordHash = hash

	if s.deps.Lockout != nil {
		if err := s.deps.Lockout.Reset(ctx, account.NormalizeEmail(user.Email), ""); err != nil {
			s.deps.Log.Warn("login lockout reset failed", zap.Error(err))
		}
	}
	return user, nil
}

// consumeToken verifies raw as kind for userID, runs precheck, and then
// revokes the token. Only the caller whose revoke flips the token succeeds.
func (s *Service) consumeToken(ctx context.Context, raw string, kind jwt.Kind, userID string, precheck func(account.User) error) (account.User, error) {
	if raw == "" || userID == "" {
		return account.User{}, s.deps.Errors.InvalidToken
	}
	claims, err := s.deps.Ledger.Verify(ctx, raw, kind)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalid) {
			return account.User{}, s.deps.Errors.InvalidToken
		}
		return account.User{}, s.backend(err)
	}
	if claims.UserID() != userID {
		return account.User{}, s.deps.Errors.InvalidToken
	}

	user, err := s.deps.Accounts.GetByID(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, s.deps.Errors.InvalidToken
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	if precheck != nil {
		if err := precheck(user); err != nil {
			return account.User{}, err
		}
	}

	consumed, err := s.deps.Ledger.Revoke(ctx, raw)
	if err != nil {
		return account.User{}, s.backend(err)
	}
	if !consumed {
		return account.User{}, s.deps.Errors.InvalidToken
	}
	if kind == jwt.KindChangeEmail {
		user.Email = claims.Email
	}
	return user, nil
}

// ForcePasswordReset runs when an email crosses the login lockout limit. It
// makes the password unusable, revokes everything and mails the user a way
// back in. Unknown emails are ignored.
func (s *Service) ForcePasswordReset(ctx context.Context, email string) error {
	if err := s.ready(); err != nil {
		return err
	}
	user, err := s.deps.Accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.backend(err)
	}

	err = s.forcePasswordReset(ctx, user)
	s.record(ctx, EventForcePasswordReset, user.ID, "", err, nil)
	return err
}

func (s *Service) forcePasswordReset(ctx context.Context, user account.User) error {
	hash, err := password.Unusable()
	if err != nil {
		return s.backend(err)
	}
	if err := s.deps.Accounts.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.backend(err)
	}
	if err := s.revokeEverything(ctx, user.ID); err != nil {
		return err
	}

	// Runs inside a task already; send directly so a failure is retried.
	return s.mail().SendLockout(ctx, user.Email, s.resetRequestLink())
}

func (s *Service) userByID(ctx context.Context, userID string) (account.User, error) {
	if userID == "" {
		return account.User{}, s.deps.Errors.InvalidToken
	}
	user, err := s.deps.Accounts.GetByID(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, s.deps.Errors.InvalidToken
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	return user, nil
}
