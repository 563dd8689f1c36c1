package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Provider names the external identity provider an account was created with.
type Provider string

const (
	ProviderNone     Provider = ""
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Valid reports whether p is one of the supported social providers.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

var (
	// ErrNotFound is returned by a Store when no row matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by a Store when the email is already taken.
	ErrDuplicateEmail = errors.New("account email already exists")
)

// User is the identity record.
type User struct {
	PK             int64     `db:"pk" json:"-"`
	ID             string    `db:"portunus_uuid" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password" json:"-"`
	SocialProvider Provider  `db:"social_login_provider" json:"social_login_provider,omitempty"`
	IsStaff        bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser    bool      `db:"is_superuser" json:"is_superuser"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CreateInput is the write model for Store.Create. ID and PK are assigned by
// the caller so every backend shares one identifier scheme.
type CreateInput struct {
	PK             int64
	ID             string
	Email          string
	PasswordHash   string
	SocialProvider Provider
	IsStaff        bool
	IsSuperuser    bool
}

// SearchResult is one page of an admin search.
type SearchResult struct {
	Users []User
	Total int
}

// Store persists users. Implementations must treat Email lookups as
// case-insensitive and enforce email uniqueness on write.
type Store interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, in CreateInput) (User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateEmail(ctx context.Context, id, email string) error
	SetFlags(ctx context.Context, id string, staff, superuser bool) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit, offset int) (SearchResult, error)
}

// NormalizeEmail trims surrounding space and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
