package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portunus-id/portunus/account"
)

const DefaultTimeout = 5 * time.Second

var (
	// ErrRejected means the provider did not vouch for the email.
	ErrRejected = errors.New("social token rejected")
	// ErrUnavailable wraps transport and provider errors.
	ErrUnavailable = errors.New("social provider unavailable")
	// ErrUnsupportedProvider is returned for providers without a verifier.
	ErrUnsupportedProvider = errors.New("unsupported social provider")
)

// Verifier checks one provider's tokens.
type Verifier interface {
	Verify(ctx context.Context, email, token string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, email, token string) error

func (f VerifierFunc) Verify(ctx context.Context, email, token string) error {
	return f(ctx, email, token)
}

// Registry dispatches to the verifier for a provider under a bounded timeout.
type Registry struct {
	verifiers map[account.Provider]Verifier
	timeout   time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{verifiers: make(map[account.Provider]Verifier), timeout: timeout}
}

// Register binds v to p, replacing any earlier verifier.
func (r *Registry) Register(p account.Provider, v Verifier) {
	r.verifiers[p] = v
}

// Supports reports whether p has a verifier.
func (r *Registry) Supports(p account.Provider) bool {
	if r == nil {
		return false
	}
	_, ok := r.verifiers[p]
	return ok
}

// Verify returns nil only when the provider vouches for email.
func (r *Registry) Verify(ctx context.Context, p account.Provider, email, token string) error {
	if r == nil {
		return ErrUnsupportedProvider
	}
	v, ok := r.verifiers[p]
	if !ok {
		return ErrUnsupportedProvider
	}
	if email == "" || token == "" {
		return ErrRejected
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := v.Verify(ctx, email, token)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRejected), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// sameEmail compares addresses the way accounts store them.
func sameEmail(claimed, asserted string) bool {
	asserted = account.NormalizeEmail(asserted)
	return asserted != "" && account.NormalizeEmail(claimed) == asserted
}
