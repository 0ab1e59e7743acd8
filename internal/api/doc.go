// Package api implements the HTTP REST API for dipscan-server.
//
// New(store, runner, defaults, onResult) returns a Handler that serves:
//
//	GET    /api/v1/health                  — liveness and stored-target count
//	GET    /api/v1/targets                 — metadata for all stored targets
//	GET    /api/v1/targets/{id}            — metadata + array statistics; 404 if unknown
//	GET    /api/v1/targets/{id}/deviation  — full deviation array, empty bins as null
//	POST   /api/v1/targets/{id}/process    — run a batch; 409 if one is in flight
//	DELETE /api/v1/targets/{id}            — remove a stored ResultSet
//	GET    /api/v1/compare?ids=a,b,c       — statistics for several targets side by side
//
// POST /process accepts per-run overrides as query parameters: timeout (Go
// duration or seconds), max_files, bin_size. Without overrides the handler's
// configured defaults apply; SetDefaults swaps them on config reload.
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for unsupported methods
//   - Return 400 for malformed target ids or override values
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
