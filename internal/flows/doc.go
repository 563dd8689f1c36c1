// Package flows contains the request-level auth state machine behind every
// Engine operation: registration, the login credential chain, the MFA
// step-up, session start/refresh/end, password and email changes, password
// reset, forced resets on lockout and the admin user operations.
//
// A Service is built once from Deps and holds no mutable state of its own.
// Every side effect goes through a dependency interface, so tests wire fakes
// or miniredis-backed components.
//
// # Architecture boundaries
//
// Flows coordinate the token ledger, session store, failure counter, login
// lockout, password hasher, MFA challenge, social verifiers, mailer and the
// task queue. They do NOT own any of these resources; ownership stays with
// the Engine. Host-level sentinel errors arrive through [Errors] so callers
// can match them with errors.Is without this package importing portunus.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import portunus (to avoid import cycles).
//   - Speak HTTP. Cookies, envelopes and status codes belong to httpapi.
package flows
