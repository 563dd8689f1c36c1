// Package settings loads process settings from defaults, an optional
// portunus.yaml, a .env file and PORTUNUS_* environment variables, in
// increasing precedence.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Settings struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	Debug      bool   `mapstructure:"debug"`
	Production bool   `mapstructure:"production"`
	NodeID     int64  `mapstructure:"node_id"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseDSN    string `mapstructure:"database_dsn"`

	SigningMethod  string `mapstructure:"signing_method"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	SigningSecret  string `mapstructure:"signing_secret"`
	KeyID          string `mapstructure:"key_id"`
	Issuer         string `mapstructure:"issuer"`
	Audience       string `mapstructure:"audience"`

	AccessTTL              time.Duration `mapstructure:"access_ttl"`
	RefreshTTL             time.Duration `mapstructure:"refresh_ttl"`
	ResetTTL               time.Duration `mapstructure:"reset_ttl"`
	ChangeEmailTTL         time.Duration `mapstructure:"change_email_ttl"`
	MFATokenTTL            time.Duration `mapstructure:"mfa_token_ttl"`
	RotateRefreshTokens    bool          `mapstructure:"rotate_refresh_tokens"`
	BlacklistAfterRotation bool          `mapstructure:"blacklist_after_rotation"`
	SessionAge             time.Duration `mapstructure:"session_age"`
	CookieSameSite         string        `mapstructure:"cookie_samesite"`

	LoginFailureLimit     int           `mapstructure:"login_failure_limit"`
	LoginCooldown         time.Duration `mapstructure:"login_cooldown"`
	MaxAuthChangeFailures int           `mapstructure:"max_auth_change_failures"`
	MFACodeTimeout        time.Duration `mapstructure:"mfa_code_timeout"`
	LoginViaRegister      bool          `mapstructure:"login_via_register"`

	DefaultRedirectURL     string   `mapstructure:"default_redirect_url"`
	ValidRedirectHostnames []string `mapstructure:"valid_redirect_hostnames"`
	FrontendURL            string   `mapstructure:"frontend_url"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	MailFrom     string `mapstructure:"mail_from"`

	GoogleClientID    string        `mapstructure:"google_client_id"`
	FacebookAppID     string        `mapstructure:"facebook_app_id"`
	FacebookAppSecret string        `mapstructure:"facebook_app_secret"`
	SocialTimeout     time.Duration `mapstructure:"social_timeout"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst"`
	AuditBuffer       int     `mapstructure:"audit_buffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("debug", false)
	v.SetDefault("production", false)
	v.SetDefault("node_id", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "file:portunus.db?_pragma=foreign_keys(1)")
	v.SetDefault("signing_method", "rs512")
	v.SetDefault("issuer", "portunus")
	v.SetDefault("access_ttl", 5*time.Minute)
	v.SetDefault("refresh_ttl", 30*time.Minute)
	v.SetDefault("reset_ttl", 5*time.Minute)
	v.SetDefault("change_email_ttl", 30*time.Minute)
	v.SetDefault("mfa_token_ttl", 15*time.Minute)
	v.SetDefault("rotate_refresh_tokens", true)
	v.SetDefault("blacklist_after_rotation", false)
	v.SetDefault("session_age", time.Hour)
	v.SetDefault("cookie_samesite", "lax")
	v.SetDefault("login_failure_limit", 5)
	v.SetDefault("login_cooldown", 0)
	v.SetDefault("max_auth_change_failures", 5)
	v.SetDefault("mfa_code_timeout", 5*time.Minute)
	v.SetDefault("login_via_register", false)
	v.SetDefault("default_redirect_url", "http://localhost:4000")
	v.SetDefault("valid_redirect_hostnames", []string{"localhost"})
	v.SetDefault("frontend_url", "http://localhost:4000")
	v.SetDefault("allowed_origins", []string{"http://localhost:4000"})
	v.SetDefault("smtp_port", 587)
	v.SetDefault("mail_from", "no-reply@localhost")
	v.SetDefault("social_timeout", 5*time.Second)
	v.SetDefault("requests_per_second", 10.0)
	v.SetDefault("request_burst", 20)
	v.SetDefault("audit_buffer", 1024)
}

// Load reads settings. configFile may be empty, in which case portunus.yaml
// is searched in the working directory and /etc/portunus.
func Load(configFile string) (*Settings, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("portunus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/portunus/")
	}

	v.SetEnvPrefix("PORTUNUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings that cannot serve production traffic.
func (s *Settings) Validate() error {
	if s.Production && s.Debug {
		return errors.New("debug must be off in production")
	}
	if s.Production && s.SigningMethod == "hs256" {
		return errors.New("production requires an asymmetric signing method")
	}
	switch s.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", s.DatabaseDriver)
	}
	if s.DefaultRedirectURL == "" {
		return errors.New("default_redirect_url is required")
	}
	return nil
}
