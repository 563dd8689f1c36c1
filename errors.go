package portunus

import (
	"errors"
	"fmt"

	"github.com/portunus-id/portunus/mfa"
)

var (
	// ErrEngineNotReady is returned by every Engine method on a nil or
	// partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrAuthFailure is the one failure every credential check reports, so a
	// caller cannot tell an unknown email from a wrong password.
	ErrAuthFailure = errors.New("Invalid authentication credentials")
	// ErrInvalidToken covers expired, revoked, malformed and wrong-kind tokens.
	ErrInvalidToken = errors.New("Invalid or expired token")
	// ErrAccountLockedOut is returned after too many failed password checks
	// on a sensitive action. Every token of the user has been revoked.
	ErrAccountLockedOut = errors.New("Too many failed attempts. You have been logged out.")
	// ErrLoginLockedOut is returned while the login lockout for an email is active.
	ErrLoginLockedOut = errors.New("Account locked: too many login attempts. Check your email to reset your password.")
	// ErrRateLimited is returned when a request or code-guess budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned by admin lookups.
	ErrNotFound = errors.New("not found")
	// ErrBackend wraps store, Redis and ledger failures.
	ErrBackend = errors.New("auth backend unavailable")
	// ErrPermissionDenied is returned by staff-only operations.
	ErrPermissionDenied = errors.New("permission denied")
)

// MFA errors carry the messages shown to the user.
var (
	ErrMfaInvalidToken   = mfa.ErrInvalidToken
	ErrMfaInvalidCode    = mfa.ErrInvalidCode
	ErrMfaMethodNotFound = mfa.ErrMethodNotFound
	ErrMfaMethodActive   = mfa.ErrMethodActive
	ErrMfaMethodInactive = mfa.ErrMethodInactive
)

func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackend, err)
}
