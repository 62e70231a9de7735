// Package api hosts the HTTP server that fronts the progress handler.
// Routes:
//   - any method on / and /progress is translated into a handler.Request.
//   - GET /healthz and /readyz for probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
package api
