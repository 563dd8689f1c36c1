// Package limiters holds the Redis counters that guard sensitive actions.
//
// # Limiters
//
//   - [FailureCounter]: consecutive failed re-authentications before a
//     password or email change. Crossing the threshold forces a logout.
//   - [CodeLimiter]: wrong MFA code guesses per user.
//   - [RequestLimiter]: per-identifier and per-IP throttle for
//     unauthenticated requests (registration, reset emails).
//
// Every counter is a single INCR with EXPIRE on the first hit.
//
// # What this package must NOT do
//
//   - Import portunus or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
