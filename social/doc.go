// Package social checks provider-issued tokens presented at social login.
//
// A Verifier confirms that a token was minted for this application and that
// it belongs to the claimed email address. Every failure, including a slow
// or unreachable provider, counts as a rejection.
//
// # What this package must NOT do
//
//   - Decide whether an existing account may be linked to a provider.
//   - Create accounts.
package social
