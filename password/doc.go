// Package password hashes, verifies and vets user passwords.
//
// # Output format
//
// New hashes are argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes still verify and report NeedsRehash. A stored value starting
// with "!" is unusable and never matches.
//
// # Policy
//
// Policy runs every Rule and collects all messages: minimum length,
// similarity to the email, the embedded common-password list, numeric-only,
// letter-and-digit, and a zxcvbn score of at least MinScore.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other portunus package.
//   - Log plaintext passwords.
package password
