package audit

// Event types emitted by the engine. Metrics reuse them as the event label.
const (
	Register           = "register"
	Login              = "login"
	LoginLockout       = "login_lockout"
	LoginMfaRequired   = "login_mfa_required"
	LoginMfa           = "login_mfa"
	SessionCreated     = "session_created"
	Refresh            = "refresh"
	Logout             = "logout"
	PasswordChange     = "password_change"
	SensitiveLockout   = "sensitive_action_lockout"
	PasswordResetReq   = "password_reset_request"
	PasswordReset      = "password_reset"
	ForcePasswordReset = "force_password_reset"
	EmailChangeReq     = "email_change_request"
	EmailChange        = "email_change"
	MfaActivationReq   = "mfa_activation_request"
	MfaActivated       = "mfa_activated"
	MfaDeactivated     = "mfa_deactivated"
	MfaCodeSent        = "mfa_code_sent"
	AdminCreateUser    = "admin_create_user"
	AdminDeleteUser    = "admin_delete_user"
	AccountDeleted     = "account_deleted"
	UserFlagsChanged   = "user_flags_changed"
)

// critical lists successful events that change credentials, sessions or
// account existence. They are never dropped for lack of buffer space.
var critical = map[string]bool{
	LoginLockout:       true,
	Logout:             true,
	PasswordChange:     true,
	SensitiveLockout:   true,
	PasswordReset:      true,
	ForcePasswordReset: true,
	EmailChange:        true,
	MfaActivated:       true,
	MfaDeactivated:     true,
	AdminCreateUser:    true,
	AdminDeleteUser:    true,
	AccountDeleted:     true,
	UserFlagsChanged:   true,
}

// Critical reports whether e must wait for buffer space instead of being
// dropped. Every failure is critical.
func (e Event) Critical() bool {
	return !e.Success || critical[e.EventType]
}
