package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is the derived posture. Warnings lists settings that are legal but
// weaker than a production deployment should run with.
type Report struct {
	ProductionMode          bool
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Argon2                  PasswordReport
	RefreshRotationEnabled  bool
	RefreshBlacklistEnabled bool
	LoginLockoutActive      bool
	LockoutNeedsReset       bool
	AuthChangeLockoutActive bool
	MfaCodeLimitActive      bool
	ResetRequestLimitActive bool
	LoginViaRegister        bool
	LocalhostRedirects      bool
	Warnings                []string
}

type ReportInput struct {
	ProductionMode         bool
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Password               PasswordReport
	RotateRefreshTokens    bool
	BlacklistAfterRotation bool
	LoginFailureLimit      int
	LoginCooldown          time.Duration
	MaxAuthChangeFailures  int
	MfaCodeAttempts        int
	ResetRequestLimit      int
	LoginViaRegister       bool
	AllowLocalhost         bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		ProductionMode:          input.ProductionMode,
		SigningAlgorithm:        input.SigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		RefreshTTL:              input.RefreshTTL,
		Argon2:                  input.Password,
		RefreshRotationEnabled:  input.RotateRefreshTokens,
		RefreshBlacklistEnabled: input.RotateRefreshTokens && input.BlacklistAfterRotation,
		LoginLockoutActive:      input.LoginFailureLimit > 0,
		LockoutNeedsReset:       input.LoginFailureLimit > 0 && input.LoginCooldown == 0,
		AuthChangeLockoutActive: input.MaxAuthChangeFailures > 0,
		MfaCodeLimitActive:      input.MfaCodeAttempts > 0,
		ResetRequestLimitActive: input.ResetRequestLimit > 0,
		LoginViaRegister:        input.LoginViaRegister,
		LocalhostRedirects:      input.AllowLocalhost,
	}

	if input.SigningAlgorithm == "hs256" {
		r.Warnings = append(r.Warnings, "symmetric token signing")
	}
	if !r.RefreshRotationEnabled {
		r.Warnings = append(r.Warnings, "refresh tokens are not rotated")
	}
	if input.Password.Memory < 64*1024 {
		r.Warnings = append(r.Warnings, "argon2 memory below 64 MiB")
	}
	if input.LoginViaRegister {
		r.Warnings = append(r.Warnings, "login without password is enabled")
	}
	if input.AllowLocalhost {
		r.Warnings = append(r.Warnings, "localhost redirects are allowed")
	}
	if !input.ProductionMode {
		r.Warnings = append(r.Warnings, "production mode is off")
	}
	return r
}
