package flows

import (
	"context"
	"errors"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/mfa"
)

func (s *Service) mfaUser(ctx context.Context, userID string) (account.User, error) {
	if err := s.ready(); err != nil {
		return account.User{}, err
	}
	if s.deps.Mfa == nil {
		return account.User{}, mfa.ErrUnsupportedMethod
	}
	return s.userByID(ctx, userID)
}

// mfaErr passes MFA state errors through and wraps everything else.
func (s *Service) mfaErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mfa.ErrInvalidCode),
		errors.Is(err, mfa.ErrInvalidToken),
		errors.Is(err, mfa.ErrMethodNotFound),
		errors.Is(err, mfa.ErrMethodActive),
		errors.Is(err, mfa.ErrMethodInactive),
		errors.Is(err, mfa.ErrUnsupportedMethod):
		return err
	default:
		return s.backend(err)
	}
}

// RequestMfaActivation creates the method if needed and sends a code.
func (s *Service) RequestMfaActivation(ctx context.Context, userID string, t mfa.MethodType) (mfa.Method, error) {
	user, err := s.mfaUser(ctx, userID)
	if err != nil {
		return mfa.Method{}, err
	}
	m, err := s.deps.Mfa.RequestActivation(ctx, user, t)
	err = s.mfaErr(err)
	s.record(ctx, EventMfaActivationReq, userID, "", err, map[string]string{"method": string(t)})
	return m, err
}

// ConfirmMfaActivation activates the method when code matches.
func (s *Service) ConfirmMfaActivation(ctx context.Context, userID string, t mfa.MethodType, code string) (mfa.Method, error) {
	user, err := s.mfaUser(ctx, userID)
	if err != nil {
		return mfa.Method{}, err
	}
	m, err := s.deps.Mfa.ConfirmActivation(ctx, user, t, code)
	err = s.mfaErr(err)
	s.record(ctx, EventMfaActivated, userID, "", err, map[string]string{"method": string(t)})
	if err == nil {
		s.notify(ctx, user.Email, "Two-Factor Authentication Enabled", "A second sign-in step was enabled on your account.")
	}
	return m, err
}

// ConfirmMfaDeactivation turns the method off.
func (s *Service) ConfirmMfaDeactivation(ctx context.Context, userID string, t mfa.MethodType) (mfa.Method, error) {
	user, err := s.mfaUser(ctx, userID)
	if err != nil {
		return mfa.Method{}, err
	}
	m, err := s.deps.Mfa.ConfirmDeactivation(ctx, user, t)
	err = s.mfaErr(err)
	s.record(ctx, EventMfaDeactivated, userID, "", err, map[string]string{"method": string(t)})
	if err == nil {
		s.notify(ctx, user.Email, "Two-Factor Authentication Disabled", "The second sign-in step was turned off on your account.")
	}
	return m, err
}

// SendMfaCode sends a fresh code for an authenticated user.
func (s *Service) SendMfaCode(ctx context.Context, userID string, t mfa.MethodType) error {
	user, err := s.mfaUser(ctx, userID)
	if err != nil {
		return err
	}
	err = s.mfaErr(s.deps.Mfa.SendCodeFor(ctx, user, t))
	s.record(ctx, EventMfaCodeSent, userID, "", err, map[string]string{"method": string(t)})
	return err
}

// SendMfaCodeWithToken resends a login code to the holder of an MFA token.
func (s *Service) SendMfaCodeWithToken(ctx context.Context, mfaToken string, t mfa.MethodType) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.deps.Mfa == nil {
		return mfa.ErrInvalidToken
	}
	user, err := s.userFromMfaToken(ctx, mfaToken)
	if err != nil {
		return err
	}
	err = s.mfaErr(s.deps.Mfa.SendCodeFor(ctx, user, t))
	s.record(ctx, EventMfaCodeSent, user.ID, "", err, map[string]string{"method": string(t), "via": "token"})
	return err
}

// MfaMethods lists the user's active methods.
func (s *Service) MfaMethods(ctx context.Context, userID string) ([]mfa.Method, error) {
	if _, err := s.mfaUser(ctx, userID); err != nil {
		return nil, err
	}
	methods, err := s.deps.Mfa.Methods(ctx, userID)
	return methods, s.mfaErr(err)
}
