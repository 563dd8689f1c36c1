package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/password"
)

// Credentials is everything a login request may carry. Which fields matter
// depends on the check.
type Credentials struct {
	Email    string
	Password string
	Provider account.Provider
	Token    string
}

// CredentialCheck authenticates creds or explains why not. A returned
// *account.ValidationError is surfaced to the caller verbatim.
type CredentialCheck func(ctx context.Context, creds Credentials) (account.User, error)

// loginChain is the ordered list of checks login tries.
func (s *Service) loginChain() []CredentialCheck {
	chain := []CredentialCheck{s.passwordCheck, s.socialCheck}
	if s.deps.Policy.LoginViaRegister {
		chain = append(chain, s.existingEmailCheck)
	}
	return chain
}

// runChain returns the first success, or the first check's error.
func runChain(ctx context.Context, chain []CredentialCheck, creds Credentials) (account.User, error) {
	var first error
	for _, check := range chain {
		user, err := check(ctx, creds)
		if err == nil {
			return user, nil
		}
		if first == nil {
			first = err
		}
	}
	return account.User{}, first
}

func required(creds Credentials, fields ...string) error {
	v := &account.ValidationError{}
	for _, f := range fields {
		var val string
		switch f {
		case "email":
			val = creds.Email
		case "password":
			val = creds.Password
		case "provider":
			val = string(creds.Provider)
		case "token":
			val = creds.Token
		}
		if strings.TrimSpace(val) == "" {
			v.Add(f, "This field is required.")
		}
	}
	if v.Empty() {
		return nil
	}
	return v
}

func (s *Service) passwordCheck(ctx context.Context, creds Credentials) (account.User, error) {
	if err := required(creds, "email", "password"); err != nil {
		return account.User{}, err
	}
	return s.VerifyPassword(ctx, creds.Email, creds.Password)
}

func (s *Service) socialCheck(ctx context.Context, creds Credentials) (account.User, error) {
	if err := required(creds, "email", "provider", "token"); err != nil {
		return account.User{}, err
	}
	return s.VerifySocial(ctx, creds.Email, creds.Provider, creds.Token)
}

// existingEmailCheck accepts any registered email. It only runs when
// Policy.LoginViaRegister is set.
func (s *Service) existingEmailCheck(ctx context.Context, creds Credentials) (account.User, error) {
	if err := required(creds, "email"); err != nil {
		return account.User{}, err
	}
	user, err := s.deps.Accounts.GetByEmail(ctx, creds.Email)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, s.deps.Errors.AuthFailure
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	return user, nil
}

// VerifyPassword authenticates email and password. A missing user and a
// wrong password both cost one hash comparison and both return AuthFailure.
func (s *Service) VerifyPassword(ctx context.Context, email, pw string) (account.User, error) {
	user, err := s.deps.Accounts.GetByEmail(ctx, email)
	if err != nil {
		s.deps.Hasher.DummyCheck(pw)
		if errors.Is(err, account.ErrNotFound) {
			return account.User{}, s.deps.Errors.AuthFailure
		}
		return account.User{}, s.backend(err)
	}
	if !s.deps.Hasher.Check(pw, user.PasswordHash) {
		return account.User{}, s.deps.Errors.AuthFailure
	}

	if s.deps.Hasher.NeedsRehash(user.PasswordHash) {
		if hash, err := s.deps.Hasher.Hash(pw); err == nil {
			if err := s.deps.Accounts.UpdatePassword(ctx, user.ID, hash); err != nil {
				s.deps.Log.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
			} else {
				user.PasswordHash = hash
			}
		}
	}
	return user, nil
}

// VerifySocial authenticates email through provider. Google accounts match
// any existing user; other providers only match users already linked to the
// same provider. An unknown email provisions a new account bound to the
// provider with an unusable password.
func (s *Service) VerifySocial(ctx context.Context, email string, provider account.Provider, token string) (account.User, error) {
	if s.deps.Social == nil || !provider.Valid() || !s.deps.Social.Supports(provider) {
		return account.User{}, s.deps.Errors.AuthFailure
	}
	if err := s.deps.Social.Verify(ctx, provider, email, token); err != nil {
		s.deps.Log.Info("social token rejected",
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		return account.User{}, s.deps.Errors.AuthFailure
	}

	user, err := s.deps.Accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return s.provisionSocial(ctx, email, provider)
	case err != nil:
		return account.User{}, s.backend(err)
	}

	if !linkable(user, provider) {
		return account.User{}, s.deps.Errors.AuthFailure
	}
	return user, nil
}

func linkable(user account.User, provider account.Provider) bool {
	if provider == account.ProviderGoogle {
		return true
	}
	if user.SocialProvider == account.ProviderNone {
		return false
	}
	return user.SocialProvider == provider
}

func (s *Service) provisionSocial(ctx context.Context, email string, provider account.Provider) (account.User, error) {
	hash, err := password.Unusable()
	if err != nil {
		return account.User{}, s.backend(err)
	}
	user, err := s.createUser(ctx, account.CreateInput{
		Email:          email,
		PasswordHash:   hash,
		SocialProvider: provider,
	})
	if errors.Is(err, account.ErrDuplicateEmail) {
		// Lost a race with a concurrent provisioning of the same email.
		existing, gerr := s.deps.Accounts.GetByEmail(ctx, email)
		if gerr != nil || !linkable(existing, provider) {
			return account.User{}, s.deps.Errors.AuthFailure
		}
		return existing, nil
	}
	return user, err
}

// createUser assigns identifiers and persists in.
func (s *Service) createUser(ctx context.Context, in account.CreateInput) (account.User, error) {
	in.ID = uuid.NewString()
	if s.deps.IDs != nil {
		in.PK = s.deps.IDs.Next()
	}
	in.Email = strings.TrimSpace(in.Email)
	user, err := s.deps.Accounts.Create(ctx, in)
	if errors.Is(err, account.ErrDuplicateEmail) {
		return account.User{}, err
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	return user, nil
}

// VerifyForSensitiveAction re-checks the password of an authenticated user.
// Each failure is counted; the failure that reaches the limit revokes every
// token, clears every session and returns AccountLockedOut instead of
// AuthFailure.
func (s *Service) VerifyForSensitiveAction(ctx context.Context, user account.User, pw string) error {
	if s.deps.Hasher.Check(pw, user.PasswordHash) {
		return nil
	}

	count, err := s.deps.Failures.RecordFailure(ctx, user.ID)
	if err != nil {
		return s.backend(err)
	}
	if count < s.deps.Policy.MaxAuthChangeFailures {
		return s.deps.Errors.AuthFailure
	}

	if err := s.revokeEverything(ctx, user.ID); err != nil {
		return err
	}
	s.deps.Log.Warn("sensitive action lockout",
		zap.String("user_id", user.ID),
		zap.Int("failures", count),
	)
	return s.deps.Errors.AccountLockedOut
}

// revokeEverything blacklists every ledgered token and drops every session
// of the user.
func (s *Service) revokeEverything(ctx context.Context, userID string) error {
	if _, err := s.deps.Ledger.RevokeAll(ctx, userID); err != nil {
		return s.backend(fmt.Errorf("revoke all: %w", err))
	}
	if _, err := s.deps.Sessions.DeleteAllForUser(ctx, userID); err != nil {
		return s.backend(fmt.Errorf("delete sessions: %w", err))
	}
	return nil
}
