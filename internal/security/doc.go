// Package security summarizes the security posture of an engine
// configuration so operators can see it at startup.
//
// # What this package must NOT do
//
//   - Import portunus or read live state; it only interprets the input.
package security
