package flows

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal/limiters"
	"github.com/portunus-id/portunus/internal/rate"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
	"github.com/portunus-id/portunus/mfa"
	"github.com/portunus-id/portunus/password"
)

// RegisterRequest is a self-service signup.
type RegisterRequest struct {
	Email    string
	Password string
	Next     string
}

// LoginRequest is a password or social login.
type LoginRequest struct {
	Credentials
	Next string
	IP   string
}

// LoginResult is either a session or an MFA challenge, never both.
type LoginResult struct {
	Session     *SessionResult
	MfaRequired bool
	MfaToken    string
	MfaType     mfa.MethodType
	Next        string
}

// Register validates the address and password strength, creates the user
// and starts a session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	user, err := s.register(ctx, req)
	s.record(ctx, EventRegister, user.ID, "", err, nil)
	if err != nil {
		return nil, err
	}

	sess, err := s.StartSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: sess, Next: s.deps.Policy.Redirects.Resolve(req.Next)}, nil
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (account.User, error) {
	verr := &account.ValidationError{}
	if e := account.ValidateEmail(req.Email); e != nil {
		for f, msgs := range e.Fields {
			for _, m := range msgs {
				verr.Add(f, m)
			}
		}
	}
	if req.Password == "" {
		verr.Add("password", "This field is required.")
	} else {
		for _, m := range s.deps.Passwords.Validate(req.Password, password.Attributes{Email: req.Email}) {
			verr.Add("password", m)
		}
	}
	if !verr.Empty() {
		return account.User{}, verr
	}

	hash, err := s.deps.Hasher.Hash(req.Password)
	if err != nil {
		return account.User{}, account.NewValidationError("password", err.Error())
	}
	user, err := s.createUser(ctx, account.CreateInput{Email: req.Email, PasswordHash: hash})
	if errors.Is(err, account.ErrDuplicateEmail) {
		return account.User{}, account.NewValidationError("email", "A user with this email already exists.")
	}
	return user, err
}

// Login runs the credential chain. On success it either hands off to the
// user's primary MFA method or starts a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	email := account.NormalizeEmail(req.Email)

	if s.deps.Lockout != nil && email != "" {
		if err := s.deps.Lockout.Check(ctx, email, req.IP); err != nil {
			s.record(ctx, EventLoginLockout, "", "", err, map[string]string{"email": email})
			if errors.Is(err, rate.ErrLockedOut) {
				return nil, s.deps.Errors.LoginLockedOut
			}
			return nil, s.backend(err)
		}
	}

	user, err := runChain(ctx, s.loginChain(), req.Credentials)
	if err != nil {
		s.record(ctx, EventLogin, "", "", err, map[string]string{"email": email})
		s.loginFailed(ctx, email, req.IP, err)
		return nil, err
	}

	if s.deps.Lockout != nil {
		if err := s.deps.Lockout.Reset(ctx, email, req.IP); err != nil {
			s.deps.Log.Warn("login lockout reset failed", zap.Error(err))
		}
	}
	s.record(ctx, EventLogin, user.ID, "", nil, nil)

	next := s.deps.Policy.Redirects.Resolve(req.Next)
	if res, handled, err := s.mfaHandoff(ctx, user); handled || err != nil {
		if res != nil {
			res.Next = next
		}
		return res, err
	}

	sess, err := s.StartSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: sess, Next: next}, nil
}

// loginFailed counts the failure against the email and, on the failure that
// crosses the limit, schedules a forced password reset.
func (s *Service) loginFailed(ctx context.Context, email, ip string, cause error) {
	if s.deps.Lockout == nil || email == "" {
		return
	}
	var verr *account.ValidationError
	if errors.As(cause, &verr) {
		return
	}
	crossed, err := s.deps.Lockout.RecordFailure(ctx, email, ip)
	if err != nil {
		s.deps.Log.Warn("login lockout record failed", zap.Error(err))
		return
	}
	if crossed {
		s.record(ctx, EventLoginLockout, "", "", s.deps.Errors.LoginLockedOut, map[string]string{"email": email})
		s.enqueue(ctx, "force_password_reset", func(ctx context.Context) error {
			return s.ForcePasswordReset(ctx, email)
		})
	}
}

// mfaHandoff sends a code to the user's primary method and returns an MFA
// token in place of a session. handled is false when the user has no
// active primary method.
func (s *Service) mfaHandoff(ctx context.Context, user account.User) (*LoginResult, bool, error) {
	if s.deps.Mfa == nil {
		return nil, false, nil
	}
	method, err := s.deps.Mfa.Primary(ctx, user.ID)
	if errors.Is(err, mfa.ErrMethodNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, s.backend(err)
	}

	if err := s.deps.Mfa.SendCode(ctx, user, method); err != nil {
		return nil, true, s.backend(err)
	}
	token, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindMFA)
	if err != nil {
		return nil, true, s.backend(err)
	}

	s.record(ctx, EventLoginMfaRequired, user.ID, "", nil, map[string]string{"method": string(method.Type)})
	return &LoginResult{MfaRequired: true, MfaToken: token.Raw, MfaType: method.Type}, true, nil
}

// userFromMfaToken resolves an MFA token to its user.
func (s *Service) userFromMfaToken(ctx context.Context, raw string) (account.User, error) {
	if raw == "" {
		return account.User{}, mfa.ErrInvalidToken
	}
	claims, err := s.deps.Ledger.Verify(ctx, raw, jwt.KindMFA)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalid) {
			return account.User{}, mfa.ErrInvalidToken
		}
		return account.User{}, s.backend(err)
	}
	user, err := s.deps.Accounts.GetByID(ctx, claims.UserID())
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, mfa.ErrInvalidToken
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	return user, nil
}

// LoginWithMfaCode completes a login that was handed off to MFA. A wrong or
// expired code fails with both AuthFailure and mfa.ErrInvalidCode.
func (s *Service) LoginWithMfaCode(ctx context.Context, mfaToken, code, next string) (*LoginResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.deps.Mfa == nil {
		return nil, mfa.ErrInvalidToken
	}
	user, err := s.loginWithMfaCode(ctx, mfaToken, code)
	s.record(ctx, EventLoginMfa, user.ID, "", err, nil)
	if err != nil {
		return nil, err
	}

	sess, err := s.StartSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: sess, Next: s.deps.Policy.Redirects.Resolve(next)}, nil
}

func (s *Service) loginWithMfaCode(ctx context.Context, mfaToken, code string) (account.User, error) {
	user, err := s.userFromMfaToken(ctx, mfaToken)
	if err != nil {
		return account.User{}, err
	}

	if s.deps.CodeLimit != nil {
		if err := s.deps.CodeLimit.Check(ctx, user.ID); err != nil {
			if errors.Is(err, limiters.ErrCodeRateLimited) {
				return user, s.deps.Errors.RateLimited
			}
			return user, s.backend(err)
		}
	}

	invalid := fmt.Errorf("%w: %w", s.deps.Errors.AuthFailure, mfa.ErrInvalidCode)
	method, err := s.deps.Mfa.Primary(ctx, user.ID)
	if errors.Is(err, mfa.ErrMethodNotFound) {
		return user, invalid
	}
	if err != nil {
		return user, s.backend(err)
	}

	ok, err := s.deps.Mfa.VerifyCode(ctx, method, code)
	if err != nil {
		return user, s.backend(err)
	}
	if !ok {
		if s.deps.CodeLimit != nil {
			if err := s.deps.CodeLimit.RecordFailure(ctx, user.ID); err != nil {
				s.deps.Log.Warn("mfa code limiter record failed", zap.Error(err))
			}
		}
		return user, invalid
	}
	if s.deps.CodeLimit != nil {
		_ = s.deps.CodeLimit.Reset(ctx, user.ID)
	}
	return user, nil
}
