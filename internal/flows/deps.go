package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal/tasks"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
	"github.com/portunus-id/portunus/mfa"
	"github.com/portunus-id/portunus/password"
	"github.com/portunus-id/portunus/session"
)

// TokenLedger issues, verifies and revokes signed tokens.
type TokenLedger interface {
	Issue(ctx context.Context, userID string, kind jwt.Kind, opts ...ledger.IssueOption) (ledger.Token, error)
	Verify(ctx context.Context, raw string, kind jwt.Kind) (*jwt.Claims, error)
	Revoke(ctx context.Context, raw string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
	Lifetime(kind jwt.Kind) time.Duration
}

// SessionStore holds server-side session state.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	ReplaceRefreshToken(ctx context.Context, sessionID, expected, next string) error
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// FailureCounter counts failed re-authentications for sensitive actions.
type FailureCounter interface {
	RecordFailure(ctx context.Context, userID string) (int, error)
	Reset(ctx context.Context, userID string) error
	Max() int
}

// LoginLockout locks an email after repeated failed logins.
type LoginLockout interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) (crossed bool, err error)
	Reset(ctx context.Context, email, ip string) error
}

// RequestLimiter throttles unauthenticated requests that send mail.
type RequestLimiter interface {
	Allow(ctx context.Context, identifier, ip string) error
}

// CodeLimiter throttles MFA code guesses per user.
type CodeLimiter interface {
	Check(ctx context.Context, userID string) error
	RecordFailure(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// PasswordHasher hashes and checks passwords. Check must spend comparable
// time for unusable hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, encoded string) bool
	DummyCheck(password string)
	NeedsRehash(encoded string) bool
}

// PasswordPolicy returns user-facing messages for a weak password.
type PasswordPolicy interface {
	Validate(pw string, attrs password.Attributes) []string
}

// SocialVerifier confirms a provider token belongs to an email.
type SocialVerifier interface {
	Supports(p account.Provider) bool
	Verify(ctx context.Context, p account.Provider, email, token string) error
}

// MfaChallenge runs the MFA method state machine.
type MfaChallenge interface {
	RequestActivation(ctx context.Context, user account.User, t mfa.MethodType) (mfa.Method, error)
	ConfirmActivation(ctx context.Context, user account.User, t mfa.MethodType, code string) (mfa.Method, error)
	ConfirmDeactivation(ctx context.Context, user account.User, t mfa.MethodType) (mfa.Method, error)
	SendCode(ctx context.Context, user account.User, m mfa.Method) error
	SendCodeFor(ctx context.Context, user account.User, t mfa.MethodType) error
	VerifyCode(ctx context.Context, m mfa.Method, code string) (bool, error)
	Primary(ctx context.Context, userID string) (mfa.Method, error)
	Methods(ctx context.Context, userID string) ([]mfa.Method, error)
}

// Mailer sends the account emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, url string, validFor time.Duration) error
	SendAccountCreated(ctx context.Context, to, url string) error
	SendLockout(ctx context.Context, to, url string) error
	SendChangeEmail(ctx context.Context, newEmail, url string, validFor time.Duration) error
	SendAccountNotice(ctx context.Context, to, subject, notice string) error
}

// IDGenerator assigns internal row keys.
type IDGenerator interface {
	Next() int64
}

// Errors carries host-level sentinel errors.
type Errors struct {
	EngineNotReady   error
	AuthFailure      error
	InvalidToken     error
	AccountLockedOut error
	LoginLockedOut   error
	RateLimited      error
	NotFound         error
	Backend          error
}

// Policy is the immutable behavior configuration of the flows.
type Policy struct {
	SessionAge             time.Duration
	RotateRefreshTokens    bool
	BlacklistAfterRotation bool
	LoginViaRegister       bool
	MaxAuthChangeFailures  int
	FrontendURL            string
	Redirects              Redirects
}

// Deps wires a Service.
type Deps struct {
	Accounts   account.Store
	Ledger     TokenLedger
	Sessions   SessionStore
	Failures   FailureCounter
	Lockout    LoginLockout
	Hasher     PasswordHasher
	Passwords  PasswordPolicy
	Mfa        MfaChallenge
	CodeLimit  CodeLimiter
	Social     SocialVerifier
	Mailer     Mailer
	Tasks      tasks.Enqueuer
	ResetLimit RequestLimiter
	IDs        IDGenerator

	Policy Policy
	Errors Errors

	Log       *zap.Logger
	Now       func() time.Time
	MetricInc func(event, outcome string)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta map[string]string)
}

// Service runs the flows against one immutable Deps.
type Service struct {
	deps Deps
}

// New fills optional hooks with no-ops and returns the service.
func New(deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(string, string) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, map[string]string) {}
	}
	if deps.Mailer == nil {
		deps.Mailer = nopMailer{}
	}
	if deps.Tasks == nil {
		deps.Tasks = tasks.Inline{Log: deps.Log}
	}
	if deps.Policy.MaxAuthChangeFailures <= 0 {
		deps.Policy.MaxAuthChangeFailures = 5
	}
	if deps.Policy.SessionAge <= 0 {
		deps.Policy.SessionAge = time.Hour
	}
	return &Service{deps: deps}
}

// Initialized reports whether the required components are wired.
func (s *Service) Initialized() bool {
	d := s.deps
	return d.Accounts != nil && d.Ledger != nil && d.Sessions != nil &&
		d.Hasher != nil && d.Passwords != nil && d.Failures != nil
}

func (s *Service) ready() error {
	if s == nil || !s.Initialized() {
		return errEngineNotReady(s)
	}
	return nil
}

func errEngineNotReady(s *Service) error {
	if s != nil && s.deps.Errors.EngineNotReady != nil {
		return s.deps.Errors.EngineNotReady
	}
	return errors.New("flows not initialized")
}

// backend wraps an infrastructure failure with Errors.Backend.
func (s *Service) backend(err error) error {
	if err == nil {
		return nil
	}
	if s.deps.Errors.Backend == nil {
		return err
	}
	return fmt.Errorf("%w: %v", s.deps.Errors.Backend, err)
}

// record emits the metric and audit event for one outcome.
func (s *Service) record(ctx context.Context, event, userID, sessionID string, err error, meta map[string]string) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.deps.MetricInc(event, outcome)
	s.deps.EmitAudit(ctx, event, err == nil, userID, sessionID, err, meta)
}

// enqueue schedules fn after the caller's writes. Enqueue failures are
// logged and never change the caller's outcome.
func (s *Service) enqueue(ctx context.Context, name string, fn tasks.Func) {
	if err := s.deps.Tasks.Enqueue(context.WithoutCancel(ctx), name, fn); err != nil {
		s.deps.Log.Warn("enqueue failed", zap.String("task", name), zap.Error(err))
	}
}

func (s *Service) mail() Mailer {
	return s.deps.Mailer
}

// notify mails an account notice after the caller's writes.
func (s *Service) notify(ctx context.Context, to, subject, text string) {
	m := s.mail()
	s.enqueue(ctx, "send_account_notice", func(ctx context.Context) error {
		return m.SendAccountNotice(ctx, to, subject, text)
	})
}

type nopMailer struct{}

func (nopMailer) SendPasswordReset(context.Context, string, string, time.Duration) error { return nil }
func (nopMailer) SendAccountCreated(context.Context, string, string) error               { return nil }
func (nopMailer) SendLockout(context.Context, string, string) error                      { return nil }
func (nopMailer) SendChangeEmail(context.Context, string, string, time.Duration) error   { return nil }
func (nopMailer) SendAccountNotice(context.Context, string, string, string) error        { return nil }
