// Package ledger records issued tokens in Redis and answers whether a
// presented token is still valid.
//
// Refresh and reset tokens are kept in a per-user outstanding set scored by
// expiry, which lets RevokeAll blacklist every live token of a user at once.
// Change-email tokens are blacklistable but not ledgered, so they survive a
// logout. Access tokens carry the jti of the refresh token they were derived
// from and die with it. MFA tokens are neither ledgered nor revocable.
//
// # What this package must NOT do
//
//   - Auto-revoke on Verify. Consumption is the caller's decision.
//   - Return an error from Revoke for malformed or expired input.
package ledger
