// Package mfa implements emailed one-time-code second factors.
//
// Each user has at most one Method per MethodType. A method moves
// Unconfigured -> Inactive (created, code sent) -> Active (confirmed) ->
// Inactive (deactivated). The first method a user confirms becomes primary,
// and the primary method is the one challenged at login.
//
// Delivery is pluggable through Sender, keyed by MethodType. Codes are
// single use: Store.ClearMethodCode is a compare-and-clear, so two racing
// verifications of the same code cannot both succeed.
package mfa
