// Package api implements the Control API: the small set of endpoints
// not routed through a stack's function router — GET /health,
// GET /system/sessions, GET /system/config, POST /system/functions/start,
// GET /metrics, and GET /live. These are registered on a dedicated mux
// consulted before the function router, so a stack may register a "*"
// wildcard function route without shadowing them.
package api
