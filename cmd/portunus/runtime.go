package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/internal/ids"
	"github.com/portunus-id/portunus/internal/settings"
	"github.com/portunus-id/portunus/internal/tasks"
	"github.com/portunus-id/portunus/mailer"
	"github.com/portunus-id/portunus/social"
	"github.com/portunus-id/portunus/store/sqlstore"
)

// runtime owns every long-lived dependency of the engine.
type runtime struct {
	engine *portunus.Engine
	redis  *redis.Client
	store  *sqlstore.Store
	queue  *tasks.Queue
}

func newRuntime(ctx context.Context, s *settings.Settings, log *zap.Logger) (*runtime, error) {
	cfg, err := engineConfig(s)
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	rt.redis = redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	if err := rt.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	rt.store, err = sqlstore.Open(ctx, sqlstore.Config{Driver: s.DatabaseDriver, DSN: s.DatabaseDSN})
	if err != nil {
		return nil, err
	}
	if err := rt.store.Migrate(ctx); err != nil {
		return nil, err
	}

	var transport mailer.Transport
	if s.SMTPHost != "" {
		transport = mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     s.SMTPHost,
			Port:     s.SMTPPort,
			Username: s.SMTPUsername,
			Password: s.SMTPPassword,
		})
	} else {
		log.Warn("smtp_host not set, mail is only logged")
		transport = mailer.NewLogTransport(log.Named("mail"))
	}
	m, err := mailer.New(mailer.Config{From: s.MailFrom}, transport)
	if err != nil {
		return nil, err
	}

	verifiers := social.NewRegistry(s.SocialTimeout)
	if s.GoogleClientID != "" {
		verifiers.Register(portunus.ProviderGoogle, social.NewGoogle(ctx, s.GoogleClientID))
	}
	if s.FacebookAppID != "" {
		verifiers.Register(portunus.ProviderFacebook, social.NewFacebook(social.FacebookConfig{
			AppID:     s.FacebookAppID,
			AppSecret: s.FacebookAppSecret,
		}))
	}

	gen, err := ids.NewGenerator(s.NodeID)
	if err != nil {
		return nil, err
	}
	rt.queue = tasks.NewQueue(tasks.DefaultConfig(), log.Named("tasks"))

	rt.engine, err = portunus.New().
		WithConfig(cfg).
		WithRedis(rt.redis).
		WithAccountStore(rt.store).
		WithMailer(m).
		WithSocial(verifiers).
		WithTaskQueue(rt.queue).
		WithIDGenerator(gen).
		WithLogger(log).
		Build()
	if err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

// Close stops the engine first so no new side effects are queued, then
// drains the queue before closing the stores.
func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.queue != nil {
		_ = rt.queue.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}

// engineConfig maps process settings onto the engine configuration.
func engineConfig(s *settings.Settings) (portunus.Config, error) {
	cfg := portunus.DefaultConfig()

	cfg.JWT.SigningMethod = s.SigningMethod
	cfg.JWT.KeyID = s.KeyID
	cfg.JWT.Issuer = s.Issuer
	cfg.JWT.Audience = s.Audience
	if s.SigningMethod == "hs256" {
		cfg.JWT.PrivateKey = []byte(s.SigningSecret)
	} else {
		var err error
		if s.PrivateKeyFile != "" {
			if cfg.JWT.PrivateKey, err = os.ReadFile(s.PrivateKeyFile); err != nil {
				return portunus.Config{}, fmt.Errorf("read private key: %w", err)
			}
		}
		if s.PublicKeyFile != "" {
			if cfg.JWT.PublicKey, err = os.ReadFile(s.PublicKeyFile); err != nil {
				return portunus.Config{}, fmt.Errorf("read public key: %w", err)
			}
		}
	}

	cfg.Tokens.AccessTTL = s.AccessTTL
	cfg.Tokens.RefreshTTL = s.RefreshTTL
	cfg.Tokens.ResetTTL = s.ResetTTL
	cfg.Tokens.ChangeEmailTTL = s.ChangeEmailTTL
	cfg.Tokens.MFATokenTTL = s.MFATokenTTL
	cfg.Tokens.RotateRefreshTokens = s.RotateRefreshTokens
	cfg.Tokens.BlacklistAfterRotation = s.BlacklistAfterRotation
	cfg.Session.Age = s.SessionAge

	cfg.Security.ProductionMode = s.Production
	cfg.Security.LoginFailureLimit = s.LoginFailureLimit
	cfg.Security.LoginCooldown = s.LoginCooldown
	cfg.Security.MaxAuthChangeFailures = s.MaxAuthChangeFailures
	cfg.Security.LoginViaRegister = s.LoginViaRegister
	cfg.MFA.CodeTimeout = s.MFACodeTimeout

	cfg.Redirect.Default = s.DefaultRedirectURL
	cfg.Redirect.Hosts = nil
	cfg.Redirect.AllowLocalhost = !s.Production
	for _, h := range s.ValidRedirectHostnames {
		if h != "localhost" {
			cfg.Redirect.Hosts = append(cfg.Redirect.Hosts, h)
		}
	}
	cfg.FrontendURL = s.FrontendURL
	if s.AuditBuffer > 0 {
		cfg.Audit.BufferSize = s.AuditBuffer
	}

	if err := cfg.Validate(); err != nil {
		return portunus.Config{}, err
	}
	return cfg, nil
}
