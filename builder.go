package portunus

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus/internal/audit"
	"github.com/portunus-id/portunus/internal/flows"
	"github.com/portunus-id/portunus/internal/limiters"
	"github.com/portunus-id/portunus/internal/metrics"
	"github.com/portunus-id/portunus/internal/rate"
	"github.com/portunus-id/portunus/internal/tasks"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
	"github.com/portunus-id/portunus/mfa"
	"github.com/portunus-id/portunus/password"
	"github.com/portunus-id/portunus/session"
)

// Builder assembles an [Engine]. It is single use and not safe for
// concurrent configuration.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts   AccountStore
	mfaStore   MfaStore
	mfaSenders map[MfaMethodType]MfaSender
	mailer     Mailer
	social     SocialVerifier
	tasks      TaskQueue
	ids        IDGenerator
	auditSink  AuditSink
	log        *zap.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:     DefaultConfig(),
		mfaSenders: make(map[MfaMethodType]MfaSender),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the user store. When the store also implements
// [MfaStore] it is used for MFA methods unless WithMfaStore overrides it.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithMfaStore(store MfaStore) *Builder {
	b.mfaStore = store
	return b
}

// WithMfaSender registers the delivery for one method type. Without one,
// email codes go through the Mailer when it can send them.
func (b *Builder) WithMfaSender(t MfaMethodType, sender MfaSender) *Builder {
	b.mfaSenders[t] = sender
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithSocial(v SocialVerifier) *Builder {
	b.social = v
	return b
}

// WithTaskQueue sets where emails and lockout resets run. Without one they
// run inline.
func (b *Builder) WithTaskQueue(q TaskQueue) *Builder {
	b.tasks = q
	return b
}

func (b *Builder) WithIDGenerator(g IDGenerator) *Builder {
	b.ids = g
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithClock replaces time.Now for token signing and code expiry. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

type mfaMailer interface {
	MfaSender(validFor time.Duration) mfa.Sender
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	mfaStore := b.mfaStore
	if mfaStore == nil {
		s, ok := b.accounts.(MfaStore)
		if !ok {
			return nil, errors.New("mfa store required")
		}
		mfaStore = s
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKENS --------
	manager, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	tokenLedger := ledger.New(b.redis, manager, cfg.Tokens.RedisPrefix, map[jwt.Kind]time.Duration{
		jwt.KindAccess:      cfg.Tokens.AccessTTL,
		jwt.KindRefresh:     cfg.Tokens.RefreshTTL,
		jwt.KindReset:       cfg.Tokens.ResetTTL,
		jwt.KindChangeEmail: cfg.Tokens.ChangeEmailTTL,
		jwt.KindMFA:         cfg.Tokens.MFATokenTTL,
	})

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- MFA --------
	senders := make(map[mfa.MethodType]mfa.Sender, len(b.mfaSenders)+1)
	for t, s := range b.mfaSenders {
		senders[t] = s
	}
	if _, ok := senders[mfa.MethodEmail]; !ok {
		if m, ok := b.mailer.(mfaMailer); ok {
			senders[mfa.MethodEmail] = m.MfaSender(cfg.MFA.CodeTimeout)
		}
	}
	challenge := mfa.NewChallenge(mfaStore, senders, mfa.Config{
		CodeDigits:  cfg.MFA.CodeDigits,
		CodeTimeout: cfg.MFA.CodeTimeout,
		Now:         now,
	})

	engine := &Engine{
		config: cfg,
		redis:  b.redis,
		log:    log,
	}

	// -------- AUDIT / METRICS --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(log.Named("audit"))
	}
	if cfg.Audit.Enabled {
		engine.audit = audit.NewDispatcher(sink, audit.Options{
			Buffer:     cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
			Log:        log.Named("audit"),
		})
	}
	if cfg.Metrics.Enabled {
		engine.metrics = metrics.New(engine.AuditDropped)
	}

	var queue tasks.Enqueuer = b.tasks
	if queue == nil {
		queue = tasks.Inline{Log: log}
	}

	engine.flows = flows.New(flows.Deps{
		Accounts: b.accounts,
		Ledger:   tokenLedger,
		Sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		Failures: limiters.NewFailureCounter(b.redis, limiters.FailureCounterConfig{
			Max:    cfg.Security.MaxAuthChangeFailures,
			Window: cfg.Security.AuthChangeWindow,
		}),
		Lockout: rate.New(b.redis, rate.Config{
			FailureLimit:     cfg.Security.LoginFailureLimit,
			Cooldown:         cfg.Security.LoginCooldown,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
		}),
		Hasher:    hasher,
		Passwords: password.DefaultPolicy(),
		Mfa:       challenge,
		CodeLimit: limiters.NewCodeLimiter(b.redis, limiters.CodeLimiterConfig{
			MaxAttempts: cfg.Security.MfaCodeAttempts,
			Cooldown:    cfg.Security.MfaCodeCooldown,
		}),
		Social: b.social,
		Mailer: b.mailer,
		Tasks:  queue,
		ResetLimit: limiters.NewRequestLimiter(b.redis, limiters.RequestLimiterConfig{
			Namespace:                "reset",
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         cfg.Security.EnableIPThrottle,
			Window:                   cfg.Security.ResetRequestWindow,
			MaxAttempts:              cfg.Security.ResetRequestLimit,
		}),
		IDs: b.ids,
		Policy: flows.Policy{
			SessionAge:             cfg.Session.Age,
			RotateRefreshTokens:    cfg.Tokens.RotateRefreshTokens,
			BlacklistAfterRotation: cfg.Tokens.BlacklistAfterRotation,
			LoginViaRegister:       cfg.Security.LoginViaRegister,
			MaxAuthChangeFailures:  cfg.Security.MaxAuthChangeFailures,
			FrontendURL:            cfg.FrontendURL,
			Redirects: flows.Redirects{
				Default:        cfg.Redirect.Default,
				Hosts:          cfg.Redirect.Hosts,
				AllowLocalhost: cfg.Redirect.AllowLocalhost,
			},
		},
		Errors: flows.Errors{
			EngineNotReady:   ErrEngineNotReady,
			AuthFailure:      ErrAuthFailure,
			InvalidToken:     ErrInvalidToken,
			AccountLockedOut: ErrAccountLockedOut,
			LoginLockedOut:   ErrLoginLockedOut,
			RateLimited:      ErrRateLimited,
			NotFound:         ErrNotFound,
			Backend:          ErrBackend,
		},
		Log:       log,
		Now:       now,
		MetricInc: engine.metricInc,
		EmitAudit: engine.emitAudit,
	})

	b.built = true
	return engine, nil
}
