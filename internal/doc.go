// Package internal contains helpers private to portunus: secure random
// session IDs, CSRF tokens and one-time codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - ids: row keys and request IDs
//   - limiters: sensitive-action failure counter and request throttles
//   - logger: zap construction
//   - metrics: Prometheus registry and collectors
//   - rate: login lockout keyed by email
//   - security: configuration posture report
//   - settings: process settings loading
//   - tasks: in-process at-least-once task queue
//
// # What this package must NOT do
//
//   - Export types that appear in the public portunus API.
package internal
