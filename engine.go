package portunus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus/internal/audit"
	"github.com/portunus-id/portunus/internal/flows"
	"github.com/portunus-id/portunus/internal/metrics"
)

// Engine runs every auth operation. Methods are safe for concurrent use.
type Engine struct {
	config  Config
	redis   redis.UniversalClient
	flows   *flows.Service
	audit   *audit.Dispatcher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func (e *Engine) service() (*flows.Service, error) {
	if e == nil || e.flows == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	return e.flows, nil
}

// Close drains buffered audit events. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping checks Redis and returns the round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.redis == nil {
		return 0, ErrEngineNotReady
	}
	start := time.Now()
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return 0, wrapBackend(err)
	}
	return time.Since(start), nil
}

/*
====================================
REGISTRATION / LOGIN
====================================
*/

// Register creates a password account and starts its first session.
//
// Register returns a *ValidationError for a malformed email, a weak password
// or an email already in use.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, req)
}

// Login authenticates with a password or a social token.
//
// When the user has an active primary MFA method the result carries
// MfaRequired and an MFA token in place of a session. Login returns
// ErrAuthFailure for every credential mismatch and ErrLoginLockedOut while
// the email is locked.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	return s.Login(ctx, req)
}

// LoginWithMfaCode completes an MFA login started by [Engine.Login].
func (e *Engine) LoginWithMfaCode(ctx context.Context, mfaToken, code, next string) (*LoginResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.LoginWithMfaCode(ctx, mfaToken, code, next)
}

// RedirectAllowed reports whether next passes the redirect allow-list.
func (e *Engine) RedirectAllowed(next string) bool {
	if e == nil {
		return false
	}
	return flows.Redirects{
		Default:        e.config.Redirect.Default,
		Hosts:          e.config.Redirect.Hosts,
		AllowLocalhost: e.config.Redirect.AllowLocalhost,
	}.Allowed(next)
}

/*
====================================
SESSIONS
====================================
*/

// Logout revokes every token and session of the user behind accessToken or
// sessionID. It succeeds when neither identifies anyone.
func (e *Engine) Logout(ctx context.Context, accessToken, sessionID string) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.Logout(ctx, accessToken, sessionID)
}

// Refresh mints a new access token from the refresh token held by the
// server-side session.
func (e *Engine) Refresh(ctx context.Context, sessionID string) (*RefreshResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.Refresh(ctx, sessionID)
}

// CurrentUser resolves an access token. It returns ErrInvalidToken once the
// token or the refresh token it derives from is revoked.
func (e *Engine) CurrentUser(ctx context.Context, accessToken string) (User, *Claims, error) {
	s, err := e.service()
	if err != nil {
		return User{}, nil, err
	}
	return s.CurrentUser(ctx, accessToken)
}

// SessionCSRF returns the CSRF token bound to a live session.
func (e *Engine) SessionCSRF(ctx context.Context, sessionID string) (string, error) {
	s, err := e.service()
	if err != nil {
		return "", err
	}
	return s.SessionCSRF(ctx, sessionID)
}

/*
====================================
PASSWORDS
====================================
*/

// ChangePassword re-authenticates the user, stores the new password and
// replaces every session with a fresh one.
//
// After Security.MaxAuthChangeFailures wrong passwords it revokes everything
// and returns ErrAccountLockedOut.
func (e *Engine) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*SessionResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.ChangePassword(ctx, req)
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// It returns nil for unknown emails.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.RequestPasswordReset(ctx, email, clientIPFromContext(ctx))
}

// CompletePasswordReset consumes a reset token, stores the new password and
// starts a session. A token completes at most one reset.
func (e *Engine) CompletePasswordReset(ctx context.Context, req CompletePasswordRequest) (*SessionResult, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.CompletePasswordReset(ctx, req)
}

// ForcePasswordReset disables the password of email, logs it out everywhere
// and mails a lockout notice with a reset link.
func (e *Engine) ForcePasswordReset(ctx context.Context, email string) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.ForcePasswordReset(ctx, email)
}

/*
====================================
EMAIL CHANGE
====================================
*/

func (e *Engine) RequestEmailChange(ctx context.Context, req EmailChangeRequest) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.RequestEmailChange(ctx, req)
}

func (e *Engine) ConfirmEmailChange(ctx context.Context, userID, token string) (User, error) {
	s, err := e.service()
	if err != nil {
		return User{}, err
	}
	return s.ConfirmEmailChange(ctx, userID, token)
}

/*
====================================
MFA
====================================
*/

func (e *Engine) RequestMfaActivation(ctx context.Context, userID string, t MfaMethodType) (MfaMethod, error) {
	s, err := e.service()
	if err != nil {
		return MfaMethod{}, err
	}
	return s.RequestMfaActivation(ctx, userID, t)
}

func (e *Engine) ConfirmMfaActivation(ctx context.Context, userID string, t MfaMethodType, code string) (MfaMethod, error) {
	s, err := e.service()
	if err != nil {
		return MfaMethod{}, err
	}
	return s.ConfirmMfaActivation(ctx, userID, t, code)
}

func (e *Engine) ConfirmMfaDeactivation(ctx context.Context, userID string, t MfaMethodType) (MfaMethod, error) {
	s, err := e.service()
	if err != nil {
		return MfaMethod{}, err
	}
	return s.ConfirmMfaDeactivation(ctx, userID, t)
}

func (e *Engine) SendMfaCode(ctx context.Context, userID string, t MfaMethodType) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.SendMfaCode(ctx, userID, t)
}

// SendMfaCodeWithToken resends a code during an MFA login, authorized by
// the MFA token instead of a session.
func (e *Engine) SendMfaCodeWithToken(ctx context.Context, mfaToken string, t MfaMethodType) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.SendMfaCodeWithToken(ctx, mfaToken, t)
}

// MfaMethods lists the active methods of a user.
func (e *Engine) MfaMethods(ctx context.Context, userID string) ([]MfaMethod, error) {
	s, err := e.service()
	if err != nil {
		return nil, err
	}
	return s.MfaMethods(ctx, userID)
}

/*
====================================
ACCOUNTS / ADMIN
====================================
*/

// DeleteAccount removes the caller's own account after a password check.
func (e *Engine) DeleteAccount(ctx context.Context, userID, password string) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.DeleteAccount(ctx, userID, password)
}

// AdminCreateUser creates an account without a usable password and mails a
// set-password link.
func (e *Engine) AdminCreateUser(ctx context.Context, req AdminCreateRequest) (User, error) {
	s, err := e.service()
	if err != nil {
		return User{}, err
	}
	return s.AdminCreateUser(ctx, req)
}

func (e *Engine) AdminSearch(ctx context.Context, query string, limit, offset int) (SearchResult, error) {
	s, err := e.service()
	if err != nil {
		return SearchResult{}, err
	}
	return s.AdminSearch(ctx, query, limit, offset)
}

func (e *Engine) AdminGet(ctx context.Context, userID string) (User, error) {
	s, err := e.service()
	if err != nil {
		return User{}, err
	}
	return s.AdminGet(ctx, userID)
}

func (e *Engine) AdminDelete(ctx context.Context, userID string) error {
	s, err := e.service()
	if err != nil {
		return err
	}
	return s.AdminDelete(ctx, userID)
}

// SetStaff and SetSuperuser back the management commands.
func (e *Engine) SetStaff(ctx context.Context, email string, staff bool) (User, error) {
	s, err := e.service()
	if err != nil {
		return User{}, err
	}
	return s.SetStaff(ctx, email, staff)
}

func (e *Engine) SetSuperuser(ctx context.Context, email string, superuser bool) (User, error) {
	s, err := e.service()
	if err != nil {
		return User{}, err
	}
	return s.SetSuperuser(ctx, email, superuser)
}
