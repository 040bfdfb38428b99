// Package api implements the HTTP REST API and WebSocket server for Solshade.
//
// This package provides:
//   - REST endpoints for cover group CRUD, cycle results, forecasts,
//     history queries and manual-override resets
//   - WebSocket hub broadcasting each cycle result in real time
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits beside the shading controller. Reads come from the
// cover registry and the controller's retained per-group results; edits go
// through the registry (shared validation with the covers file) and take
// effect on the next control cycle. Cycle results flow from the controller
// into the WebSocket hub via a non-blocking relay.
//
// # Security
//
// Authentication uses JWT bearer tokens signed HS256 with the configured
// secret. WebSocket connections use single-use tickets to prevent token
// leakage in URLs.
package api
