package flows

import "github.com/portunus-id/portunus/internal/audit"

// Audit event and metric names.
const (
	EventRegister           = audit.Register
	EventLogin              = audit.Login
	EventLoginLockout       = audit.LoginLockout
	EventLoginMfaRequired   = audit.LoginMfaRequired
	EventLoginMfa           = audit.LoginMfa
	EventSessionCreated     = audit.SessionCreated
	EventRefresh            = audit.Refresh
	EventLogout             = audit.Logout
	EventPasswordChange     = audit.PasswordChange
	EventSensitiveLockout   = audit.SensitiveLockout
	EventPasswordResetReq   = audit.PasswordResetReq
	EventPasswordReset      = audit.PasswordReset
	EventForcePasswordReset = audit.ForcePasswordReset
	EventEmailChangeReq     = audit.EmailChangeReq
	EventEmailChange        = audit.EmailChange
	EventMfaActivationReq   = audit.MfaActivationReq
	EventMfaActivated       = audit.MfaActivated
	EventMfaDeactivated     = audit.MfaDeactivated
	EventMfaCodeSent        = audit.MfaCodeSent
	EventAdminCreateUser    = audit.AdminCreateUser
	EventAdminDeleteUser    = audit.AdminDeleteUser
	EventAccountDeleted     = audit.AccountDeleted
	EventUserFlagsChanged   = audit.UserFlagsChanged
)
