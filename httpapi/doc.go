// Package httpapi serves the portunus JSON API over a gorilla/mux router.
//
// Every route is composed explicitly from the middleware package, outermost
// first: LogOutcome, RequireMethod, then RequireAuth / RequireStaff /
// RequireCSRF where the route needs them. The whole router is wrapped in
// CORS, per-IP throttling, security headers and otelhttp tracing.
//
// Responses use one envelope:
//
//	{"success": true, ...fields}
//	{"success": false, "error": {"code": "...", "message": "...", "fields": {...}}}
//
// Expected failures (bad credentials, validation, spent tokens) answer 200.
// Guarded routes answer 401 without a valid access token, staff routes 403
// for non-staff users, and a locked-out login 403.
package httpapi
