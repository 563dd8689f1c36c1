// Package metrics owns the Prometheus collectors for auth outcomes and HTTP
// traffic.
//
// # Design
//
// Every collector is registered on a private [prometheus.Registry] created
// by [New], so two engines in one process (or two tests) never share
// counters. The registry also carries the Go runtime and process
// collectors and is exposed through [Metrics.Handler].
//
// # What this package must NOT do
//
//   - Register anything on the prometheus default registry.
//   - Import portunus or any sibling package.
package metrics
