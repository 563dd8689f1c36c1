// Package tasks runs follow-up work (emails, forced resets) off the request
// path.
//
// A Queue retries a failing task with exponential backoff up to MaxAttempts,
// so delivery is at-least-once for as long as the process lives. Callers
// enqueue only after their own writes have completed so a task always
// observes the state that triggered it.
//
// # What this package must NOT do
//
//   - Persist tasks across restarts.
//   - Make auth decisions.
package tasks
