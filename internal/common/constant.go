// Package common contains shared constants and sentinel errors used across
// journalsync components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// DeviceIDHeaderName identifies the calling device on write requests.
const DeviceIDHeaderName = "X-Device-ID"
