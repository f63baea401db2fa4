// Package inspect serves a live view of a reference graph over HTTP.
//
// Routes:
//
//	GET /healthz       liveness probe
//	GET /refs          JSON snapshot of every registered reference
//	GET /refs/{name}   JSON snapshot of one reference
//	GET /watch         websocket stream of changes (?ref=a&ref=b to filter)
//	GET /metrics       Prometheus exposition
//
// References are registered by name with Register. The watch stream opens
// with a hello message carrying the watcher ID and the current snapshots,
// followed by one change message per delivered notification.
package inspect
