// Package rate implements the login lockout: failed logins are counted per
// normalized email (and optionally per client IP) and the identifier is
// locked once the failure limit is reached.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. With a zero cooldown the counter
// never expires and only Reset unlocks. Key prefixes:
//   - `al:`  login per email
//   - `ali:` login per IP
//
// This lockout is independent of the sensitive-action FailureCounter in
// internal/limiters.
//
// # What this package must NOT do
//
//   - Decide what happens on lockout. The caller enqueues the forced reset.
package rate
