// Package server provides the HTTP server for the calc dashboard and API.
//
// It handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON snapshot of every channel at "/api/channels"
//   - Server-Sent Events: Real-time channel updates at "/api/sse"
//   - Local variables: POST "/api/local/{name}" feeds loc:// inputs
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
