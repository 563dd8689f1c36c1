package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/portunus-id/portunus/account"
)

// MethodType names a delivery channel.
type MethodType string

const MethodEmail MethodType = "email"

// ParseMethodType returns the method type for s, or false when unsupported.
func ParseMethodType(s string) (MethodType, bool) {
	switch MethodType(s) {
	case MethodEmail:
		return MethodEmail, true
	default:
		return "", false
	}
}

// Method is one configured second factor.
type Method struct {
	ID              int64      `db:"id" json:"-"`
	UserID          string     `db:"user_id" json:"-"`
	Type            MethodType `db:"type" json:"type"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	IsPrimary       bool       `db:"is_primary" json:"is_primary"`
	CurrentCode     string     `db:"current_code" json:"-"`
	CodeGeneratedAt time.Time  `db:"code_generated_at" json:"-"`
}

// ErrNotFound is returned by a Store when no method matches.
var ErrNotFound = errors.New("mfa method not found")

// Store persists methods. ClearMethodCode must compare and clear atomically.
type Store interface {
	GetMethod(ctx context.Context, userID string, t MethodType) (Method, error)
	ListMethods(ctx context.Context, userID string) ([]Method, error)
	CreateMethod(ctx context.Context, m Method) (Method, error)
	SetMethodCode(ctx context.Context, id int64, code string, at time.Time) error
	// ClearMethodCode clears the pending code when it equals code and was
	// generated after notBefore, and reports whether it did.
	ClearMethodCode(ctx context.Context, id int64, code string, notBefore time.Time) (bool, error)
	SetMethodState(ctx context.Context, id int64, active, primary bool) error
	HasPrimaryMethod(ctx context.Context, userID string) (bool, error)
}

// Sender delivers a code out of band.
type Sender interface {
	Send(ctx context.Context, user account.User, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, user account.User, code string) error

func (f SenderFunc) Send(ctx context.Context, user account.User, code string) error {
	return f(ctx, user, code)
}
