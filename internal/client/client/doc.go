// Package client contains the client-side building blocks for journalsync.
//
// # Overview
//
// The package provides:
//  1. An HTTP/JSON transport (see Client) for the /sync endpoints. It injects
//     the bearer access token and the device id into every request and maps
//     failures to sentinel errors.
//  2. Typed per-entity endpoints (Records, Associations, Media) used by the
//     sync orchestrator.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) that opens the
//     SQLite database and applies the embedded goose migrations.
//
// # Error Handling
//
// Network failures wrap ErrUnavailable, HTTP 401 wraps ErrUnauthorized and
// any other non-2xx response is a *StatusError. Match with errors.Is and
// errors.As.
package client
