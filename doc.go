// Package portunus is an identity core: registration, password and social
// login, email MFA, token-backed sessions, password reset, email change and
// staff administration.
//
// An [Engine] is assembled once through [Builder] and is safe for
// concurrent use. Persistent state lives behind an [AccountStore] (SQL or
// in-memory) and Redis, which holds the token ledger, failure counters,
// login lockouts and server-side sessions.
//
// # Architecture boundaries
//
// portunus is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel errors and aliases of the request and result types. Flow
// orchestration lives in internal/flows and never imports this package;
// it receives the sentinel errors through a value at build time.
//
// # What this package must NOT do
//
//   - Expose Redis clients or ledger internals in its public API.
//   - Perform I/O during Builder configuration (only Build and Engine methods).
//   - Import httpapi, middleware or cmd (they import portunus).
package portunus
