// Package api provides the local HTTP control API for BillBot Node.
//
// It lets an operator on the same host inspect and drive the gateway
// connection, edit the persisted settings and read runtime metrics:
//
//	GET  /api/v1/health
//	GET  /api/v1/status
//	POST /api/v1/connect
//	POST /api/v1/disconnect
//	GET  /api/v1/settings
//	PUT  /api/v1/settings
//	GET  /api/v1/capabilities
//	GET  /api/v1/metrics
//
// When api.token is set every route except health requires
// "Authorization: Bearer <token>". Secrets in settings are always redacted
// on read.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
