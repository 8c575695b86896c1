// Package api serves the bridge's read-only status API.
//
// Routes:
//
//	GET /api/v1/health          bridge health (503 unless healthy)
//	GET /api/v1/devices         every configured device with both caches
//	GET /api/v1/devices/{name}  one device
//	GET /api/v1/system          runtime and collaborator connectivity
//	GET /metrics                Prometheus metrics
//
// Every response carries an X-Request-ID header, echoed from the request
// or generated.
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
