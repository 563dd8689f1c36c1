package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal"
)

// Code defaults used when the configuration leaves them zero.
const (
	// DefaultCodeDigits is the number of digits in a security code.
	DefaultCodeDigits = 6
	// DefaultCodeTimeout is how long a security code stays valid after it
	// is sent.
	DefaultCodeTimeout = 5 * time.Minute
)

var (
	ErrInvalidToken      = errors.New("Invalid or expired token. Please refresh the page and try again.")
	ErrInvalidCode       = errors.New("Invalid security code. Try Again.")
	ErrMethodNotFound    = errors.New("Requested MFA method does not exist")
	ErrMethodActive      = errors.New("Requested MFA method is already active")
	ErrMethodInactive    = errors.New("Requested MFA method is already inactive")
	ErrUnsupportedMethod = errors.New("unsupported mfa method")
	ErrDelivery          = errors.New("mfa code delivery failed")
)

// Config tunes code generation and expiry.
type Config struct {
	CodeDigits  int
	CodeTimeout time.Duration
	Now         func() time.Time
}

// Challenge drives the method state machine and the code lifecycle.
type Challenge struct {
	store   Store
	senders map[MethodType]Sender
	cfg     Config
}

// NewChallenge wires a store and one sender per supported method type.
func NewChallenge(store Store, senders map[MethodType]Sender, cfg Config) *Challenge {
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = DefaultCodeDigits
	}
	if cfg.CodeTimeout <= 0 {
		cfg.CodeTimeout = DefaultCodeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Challenge{store: store, senders: senders, cfg: cfg}
}

// GenerateCode draws a fresh numeric code.
func (c *Challenge) GenerateCode() (string, error) {
	return internal.NewOTP(c.cfg.CodeDigits)
}

func (c *Challenge) sender(t MethodType) (Sender, error) {
	s, ok := c.senders[t]
	if !ok || s == nil {
		return nil, ErrUnsupportedMethod
	}
	return s, nil
}

func (c *Challenge) lookup(ctx context.Context, userID string, t MethodType) (Method, error) {
	m, err := c.store.GetMethod(ctx, userID, t)
	if errors.Is(err, ErrNotFound) {
		return Method{}, ErrMethodNotFound
	}
	return m, err
}

// RequestActivation creates the method when absent and sends a code. It
// fails when the method is already active.
func (c *Challenge) RequestActivation(ctx context.Context, user account.User, t MethodType) (Method, error) {
	if _, err := c.sender(t); err != nil {
		return Method{}, err
	}

	m, err := c.store.GetMethod(ctx, user.ID, t)
	switch {
	case errors.Is(err, ErrNotFound):
		m, err = c.store.CreateMethod(ctx, Method{UserID: user.ID, Type: t})
		if err != nil {
			return Method{}, err
		}
	case err != nil:
		return Method{}, err
	case m.IsActive:
		return Method{}, ErrMethodActive
	}

	if err := c.SendCode(ctx, user, m); err != nil {
		return Method{}, err
	}
	return m, nil
}

// ConfirmActivation checks code and activates the method. It becomes
// primary only when the user has no other primary method.
func (c *Challenge) ConfirmActivation(ctx context.Context, user account.User, t MethodType, code string) (Method, error) {
	m, err := c.lookup(ctx, user.ID, t)
	if err != nil {
		return Method{}, err
	}
	if m.IsActive {
		return Method{}, ErrMethodActive
	}

	ok, err := c.VerifyCode(ctx, m, code)
	if err != nil {
		return Method{}, err
	}
	if !ok {
		return Method{}, ErrInvalidCode
	}

	hasPrimary, err := c.store.HasPrimaryMethod(ctx, user.ID)
	if err != nil {
		return Method{}, err
	}
	if err := c.store.SetMethodState(ctx, m.ID, true, !hasPrimary); err != nil {
		return Method{}, err
	}
	m.IsActive, m.IsPrimary = true, !hasPrimary
	m.CurrentCode = ""
	return m, nil
}

// ConfirmDeactivation clears active and primary.
func (c *Challenge) ConfirmDeactivation(ctx context.Context, user account.User, t MethodType) (Method, error) {
	m, err := c.lookup(ctx, user.ID, t)
	if err != nil {
		return Method{}, err
	}
	if !m.IsActive {
		return Method{}, ErrMethodInactive
	}
	if err := c.store.SetMethodState(ctx, m.ID, false, false); err != nil {
		return Method{}, err
	}
	m.IsActive, m.IsPrimary = false, false
	return m, nil
}

// SendCode stores a fresh code on m and delivers it. A new code replaces
// any pending one.
func (c *Challenge) SendCode(ctx context.Context, user account.User, m Method) error {
	s, err := c.sender(m.Type)
	if err != nil {
		return err
	}
	code, err := c.GenerateCode()
	if err != nil {
		return err
	}
	if err := c.store.SetMethodCode(ctx, m.ID, code, c.cfg.Now()); err != nil {
		return err
	}
	if err := s.Send(ctx, user, code); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// SendCodeFor sends a code for the user's method of type t, which must exist.
func (c *Challenge) SendCodeFor(ctx context.Context, user account.User, t MethodType) error {
	m, err := c.lookup(ctx, user.ID, t)
	if err != nil {
		return err
	}
	return c.SendCode(ctx, user, m)
}

// VerifyCode reports whether code is the pending, unexpired code of m and
// consumes it on success. A mismatch is (false, nil), never an error.
func (c *Challenge) VerifyCode(ctx context.Context, m Method, code string) (bool, error) {
	if m.CurrentCode == "" || code == "" {
		return false, nil
	}
	notBefore := c.cfg.Now().Add(-c.cfg.CodeTimeout)
	if m.CodeGeneratedAt.Before(notBefore) {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(m.CurrentCode), []byte(code)) != 1 {
		return false, nil
	}
	return c.store.ClearMethodCode(ctx, m.ID, code, notBefore)
}

// Primary returns the active primary method, or ErrMethodNotFound.
func (c *Challenge) Primary(ctx context.Context, userID string) (Method, error) {
	methods, err := c.store.ListMethods(ctx, userID)
	if err != nil {
		return Method{}, err
	}
	for _, m := range methods {
		if m.IsActive && m.IsPrimary {
			return m, nil
		}
	}
	return Method{}, ErrMethodNotFound
}

// Methods lists the user's active methods.
func (c *Challenge) Methods(ctx context.Context, userID string) ([]Method, error) {
	all, err := c.store.ListMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]Method, 0, len(all))
	for _, m := range all {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}
