package rate

import "errors"

var (
	// ErrLockedOut is returned once an identifier has reached the failure limit.
	ErrLockedOut = errors.New("login locked out")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
