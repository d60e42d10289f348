// Package httpapi exposes the Gateway over HTTP.
//
// Routes:
//
//	POST /auth/login     federated credential -> access + refresh token (201)
//	GET  /auth/verify    access token (+ X-Refresh-Token) -> claims
//	POST /auth/verify    same as GET
//	POST /auth/refresh   refresh token -> access token
//	POST /auth/logout    access + refresh token -> revoked (201)
//	GET  /auth/status    {"status":"Ok"}
//	GET  /auth/health    {"cacheAlive":bool}
//	GET  /metrics        optional, see WithMetricsHandler
//
// Responses are two-space indented JSON. Failures carry only the stable
// reason code: {"error":"revoked"}.
package httpapi
