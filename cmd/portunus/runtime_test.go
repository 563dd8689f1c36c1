package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/portunus-id/portunus/internal/settings"
)

func baseSettings() *settings.Settings {
	return &settings.Settings{
		SigningMethod:          "hs256",
		SigningSecret:          "cmd-test-secret-cmd-test-secret-cmd",
		Issuer:                 "portunus",
		AccessTTL:              5 * time.Minute,
		RefreshTTL:             30 * time.Minute,
		ResetTTL:               5 * time.Minute,
		ChangeEmailTTL:         30 * time.Minute,
		MFATokenTTL:            15 * time.Minute,
		RotateRefreshTokens:    true,
		SessionAge:             time.Hour,
		LoginFailureLimit:      5,
		MaxAuthChangeFailures:  5,
		MFACodeTimeout:         5 * time.Minute,
		DefaultRedirectURL:     "http://localhost:4000",
		ValidRedirectHostnames: []string{"localhost", "*.example.com"},
		FrontendURL:            "http://localhost:4000",
		AuditBuffer:            64,
	}
}

func TestEngineConfigMapsSettings(t *testing.T) {
	cfg, err := engineConfig(baseSettings())
	require.NoError(t, err)
	require.Equal(t, "hs256", cfg.JWT.SigningMethod)
	require.Equal(t, 30*time.Minute, cfg.Tokens.RefreshTTL)
	require.Equal(t, []string{"*.example.com"}, cfg.Redirect.Hosts)
	require.True(t, cfg.Redirect.AllowLocalhost)
	require.Equal(t, 64, cfg.Audit.BufferSize)
}

func TestEngineConfigReadsKeyFiles(t *testing.T) {
	s := baseSettings()
	s.SigningMethod = "rs512"
	s.PrivateKeyFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err := engineConfig(s)
	require.ErrorContains(t, err, "read private key")

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
	s.PrivateKeyFile = path
	cfg, err := engineConfig(s)
	require.NoError(t, err)
	require.Equal(t, []byte("not a key"), cfg.JWT.PrivateKey)
}

func TestEngineConfigRejectsInvalidSettings(t *testing.T) {
	s := baseSettings()
	s.Production = true
	_, err := engineConfig(s)
	require.Error(t, err)
}
