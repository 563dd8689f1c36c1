package portunus

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/portunus-id/portunus/jwt"
)

// Config is the immutable engine configuration. Build it once with
// [DefaultConfig], adjust fields, and hand it to [Builder.WithConfig].
type Config struct {
	JWT      JWTConfig
	Tokens   TokenConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	MFA      MFAConfig
	Redirect RedirectConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// FrontendURL prefixes every link mailed to a user.
	FrontendURL string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the signing keys shared by every token kind.
type JWTConfig struct {
	SigningMethod string // "rs512" (default), "ed25519" or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds per-kind lifetimes and refresh rotation behavior.
type TokenConfig struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ResetTTL       time.Duration
	ChangeEmailTTL time.Duration
	MFATokenTTL    time.Duration

	RotateRefreshTokens    bool
	BlacklistAfterRotation bool
	RedisPrefix            string
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	Age         time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls both lockouts and the request limiters.
//
// LoginFailureLimit locks an email out of login; MaxAuthChangeFailures logs
// a user out of every session after wrong passwords on a password or email
// change. The two are independent.
type SecurityConfig struct {
	ProductionMode bool

	LoginFailureLimit int
	LoginCooldown     time.Duration // 0 = until a password reset
	EnableIPThrottle  bool

	MaxAuthChangeFailures int
	AuthChangeWindow      time.Duration // 0 = until the next successful login

	MfaCodeAttempts int
	MfaCodeCooldown time.Duration

	ResetRequestLimit  int
	ResetRequestWindow time.Duration

	// LoginViaRegister lets a login with only a known email succeed. It
	// exists for embedded sign-up forms and is off by default.
	LoginViaRegister bool
}

/*
====================================
MFA CONFIG
====================================
*/

type MFAConfig struct {
	CodeDigits  int
	CodeTimeout time.Duration
}

/*
====================================
REDIRECT CONFIG
====================================
*/

// RedirectConfig is the post-login "next" allow-list. Hosts entries are an
// exact host or "*.domain".
type RedirectConfig struct {
	Default        string
	Hosts          []string
	AllowLocalhost bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Keys are left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodRS512),
			Issuer:        "portunus",
		},
		Tokens: TokenConfig{
			AccessTTL:              5 * time.Minute,
			RefreshTTL:             30 * time.Minute,
			ResetTTL:               5 * time.Minute,
			ChangeEmailTTL:         30 * time.Minute,
			MFATokenTTL:            15 * time.Minute,
			RotateRefreshTokens:    true,
			BlacklistAfterRotation: false,
			RedisPrefix:            "tok",
		},
		Session: SessionConfig{
			RedisPrefix: "ps",
			Age:         time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Security: SecurityConfig{
			LoginFailureLimit:     5,
			MaxAuthChangeFailures: 5,
			MfaCodeAttempts:       5,
			MfaCodeCooldown:       time.Minute,
			ResetRequestLimit:     5,
			ResetRequestWindow:    15 * time.Minute,
		},
		MFA: MFAConfig{
			CodeDigits:  6,
			CodeTimeout: 5 * time.Minute,
		},
		Redirect: RedirectConfig{
			Default:        "http://localhost:4000",
			AllowLocalhost: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		FrontendURL: "http://localhost:4000",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Redirect.Hosts = append([]string(nil), cfg.Redirect.Hosts...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodRS512, jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("JWT " + c.JWT.SigningMethod + " requires PrivateKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("JWT hs256 requires a PrivateKey of at least 32 bytes")
		}
		if c.Security.ProductionMode {
			return errors.New("JWT hs256 is not allowed in ProductionMode")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Tokens
	for name, ttl := range map[string]time.Duration{
		"AccessTTL":      c.Tokens.AccessTTL,
		"RefreshTTL":     c.Tokens.RefreshTTL,
		"ResetTTL":       c.Tokens.ResetTTL,
		"ChangeEmailTTL": c.Tokens.ChangeEmailTTL,
		"MFATokenTTL":    c.Tokens.MFATokenTTL,
	} {
		if ttl <= 0 {
			return errors.New("Tokens " + name + " must be > 0")
		}
	}
	if c.Tokens.AccessTTL > c.Tokens.RefreshTTL {
		return errors.New("Tokens AccessTTL must not exceed RefreshTTL")
	}
	if c.Tokens.BlacklistAfterRotation && !c.Tokens.RotateRefreshTokens {
		return errors.New("Tokens BlacklistAfterRotation requires RotateRefreshTokens")
	}
	if strings.TrimSpace(c.Tokens.RedisPrefix) == "" {
		return errors.New("Tokens RedisPrefix must not be empty")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.RedisPrefix == c.Tokens.RedisPrefix {
		return errors.New("Session and Tokens RedisPrefix must differ")
	}
	if c.Session.Age <= 0 {
		return errors.New("Session Age must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Security
	if c.Security.LoginFailureLimit <= 0 {
		return errors.New("Security LoginFailureLimit must be > 0")
	}
	if c.Security.LoginCooldown < 0 {
		return errors.New("Security LoginCooldown must be >= 0")
	}
	if c.Security.MaxAuthChangeFailures <= 0 {
		return errors.New("Security MaxAuthChangeFailures must be > 0")
	}
	if c.Security.AuthChangeWindow < 0 {
		return errors.New("Security AuthChangeWindow must be >= 0")
	}
	if c.Security.MfaCodeAttempts <= 0 || c.Security.MfaCodeCooldown <= 0 {
		return errors.New("Security MfaCodeAttempts and MfaCodeCooldown must be > 0")
	}
	if c.Security.ResetRequestLimit <= 0 || c.Security.ResetRequestWindow <= 0 {
		return errors.New("Security ResetRequestLimit and ResetRequestWindow must be > 0")
	}
	if c.Security.ProductionMode && c.Security.LoginViaRegister {
		return errors.New("Security LoginViaRegister is not allowed in ProductionMode")
	}

	// MFA
	if c.MFA.CodeDigits < 6 || c.MFA.CodeDigits > 10 {
		return errors.New("MFA CodeDigits must be between 6 and 10")
	}
	if c.MFA.CodeTimeout <= 0 {
		return errors.New("MFA CodeTimeout must be > 0")
	}

	// Redirect
	if !isHTTPURL(c.Redirect.Default) {
		return errors.New("Redirect Default must be an http(s) URL")
	}
	for _, h := range c.Redirect.Hosts {
		h = strings.TrimSpace(h)
		if h == "" || h == "*." || strings.ContainsAny(h, "/:") {
			return errors.New("Redirect Hosts entries must be a host or *.domain")
		}
	}
	if c.Security.ProductionMode && c.Redirect.AllowLocalhost {
		return errors.New("Redirect AllowLocalhost is not allowed in ProductionMode")
	}
	if !isHTTPURL(c.FrontendURL) {
		return errors.New("FrontendURL must be an http(s) URL")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
