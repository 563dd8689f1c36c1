// Package session provides Redis-backed server-side session state.
//
// # Binary encoding
//
// Sessions are stored as a compact binary blob (see Encode). The browser
// only carries the session ID; the refresh token and CSRF secret stay here.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT verify
// tokens or decide session policy; the flows do.
//
// # What this package must NOT do
//
//   - Import portunus, jwt or ledger (no upward imports).
//   - Perform authorization decisions.
package session
