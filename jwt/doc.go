// Package jwt signs and verifies every portunus token kind (access, refresh,
// reset, change_email and mfa) with one configured key set.
//
// # Architecture boundaries
//
// The package knows nothing about revocation. Whether a token was
// blacklisted is answered by the ledger package, which wraps a Manager.
//
// # What this package must NOT do
//
//   - Accept a token signed with an algorithm other than the configured one.
//   - Accept a token with no subject or jti.
//   - Touch Redis or any other storage.
package jwt
