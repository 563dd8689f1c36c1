package portunus

import "github.com/portunus-id/portunus/internal/security"

// SecurityReport summarizes the engine's security posture.
type SecurityReport = security.Report

// SecurityReport derives the posture from the engine configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:   c.Security.ProductionMode,
		SigningAlgorithm: c.JWT.SigningMethod,
		AccessTTL:        c.Tokens.AccessTTL,
		RefreshTTL:       c.Tokens.RefreshTTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		RotateRefreshTokens:    c.Tokens.RotateRefreshTokens,
		BlacklistAfterRotation: c.Tokens.BlacklistAfterRotation,
		LoginFailureLimit:      c.Security.LoginFailureLimit,
		LoginCooldown:          c.Security.LoginCooldown,
		MaxAuthChangeFailures:  c.Security.MaxAuthChangeFailures,
		MfaCodeAttempts:        c.Security.MfaCodeAttempts,
		ResetRequestLimit:      c.Security.ResetRequestLimit,
		LoginViaRegister:       c.Security.LoginViaRegister,
		AllowLocalhost:         c.Redirect.AllowLocalhost,
	})
}
