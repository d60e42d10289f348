// Package middleware exposes an HTTP guard that authenticates requests with
// an authbridge Gateway before they reach a protected handler.
//
// [Guard] reads the access token from the Authorization header and an
// optional refresh token from X-Refresh-Token, calls Gateway.Verify, and
// injects the verified result into the request context. When the access
// token was renewed, the new token is returned to the client in the
// X-Access-Token response header.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the Gateway).
//   - Access the cache store.
//   - Make authorization decisions beyond pass/reject.
package middleware
