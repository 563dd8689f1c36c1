// Package audit relays security events to sinks without blocking requests.
//
// # Components
//
//   - [Event]: timestamp, type, user, session, IP, request ID, outcome, metadata.
//   - [Dispatcher]: buffered relay that stamps events from the request
//     context. On a full buffer routine successes are dropped while
//     failures and credential or session changes wait briefly for room.
//   - [Sink]: event consumer (zap, JSON lines, in-memory recorder, no-op).
//   - [WithClientIP], [WithRequestID]: request context carried into events.
//
// # What this package must NOT do
//
//   - Decide which events to emit. Flow functions do that.
//   - Import portunus or any sibling internal package.
package audit
