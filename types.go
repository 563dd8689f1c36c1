package portunus

import (
	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal/flows"
	"github.com/portunus-id/portunus/internal/tasks"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/mfa"
)

// Request and result types of the engine operations.
type (
	User                    = account.User
	Provider                = account.Provider
	SearchResult            = account.SearchResult
	ValidationError         = account.ValidationError
	Claims                  = jwt.Claims
	MfaMethod               = mfa.Method
	MfaMethodType           = mfa.MethodType
	Credentials             = flows.Credentials
	RegisterRequest         = flows.RegisterRequest
	LoginRequest            = flows.LoginRequest
	LoginResult             = flows.LoginResult
	SessionResult           = flows.SessionResult
	RefreshResult           = flows.RefreshResult
	ChangePasswordRequest   = flows.ChangePasswordRequest
	CompletePasswordRequest = flows.CompletePasswordRequest
	EmailChangeRequest      = flows.EmailChangeRequest
	AdminCreateRequest      = flows.AdminCreateRequest
)

// Capabilities a host provides to the [Builder].
type (
	// AccountStore persists users.
	AccountStore = account.Store
	// MfaStore persists MFA methods and their pending codes.
	MfaStore = mfa.Store
	// MfaSender delivers a code for one method type.
	MfaSender = mfa.Sender
	// Mailer sends the account emails.
	Mailer = flows.Mailer
	// SocialVerifier checks third-party tokens.
	SocialVerifier = flows.SocialVerifier
	// TaskQueue runs side effects after the triggering write.
	TaskQueue = tasks.Enqueuer
	// IDGenerator assigns internal row keys.
	IDGenerator = flows.IDGenerator
)

const (
	ProviderGoogle   = account.ProviderGoogle
	ProviderFacebook = account.ProviderFacebook
	MfaMethodEmail   = mfa.MethodEmail
)
