// Package middleware holds the HTTP middleware the portunus API composes
// around every handler: method filtering, bearer authentication, staff
// checks, CSRF double-submit checks, per-IP throttling, security headers
// and outcome logging.
//
// Each middleware is an ordinary func(http.Handler) http.Handler. Handlers
// are composed explicitly at route registration, for example
//
//	LogOutcome(log, obs, "login")(RequireMethod(http.MethodPost)(h))
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication itself: every identity decision is delegated to
// the [Authenticator] (a *portunus.Engine in production).
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the account store.
//   - Shape success responses (handlers own the envelope).
package middleware
