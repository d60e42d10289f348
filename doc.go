// Package authbridge bridges a federated identity provider with locally
// signed session tokens: it logs users in with a provider credential, verifies
// access tokens, transparently renews expired ones with a refresh token, and
// revokes both on logout.
//
// The package is designed for concurrent server workloads: Gateway methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. The Gateway holds no per-session memory; all cross-request
// coordination goes through the cache store.
//
// # Architecture boundaries
//
// authbridge is the public surface. It exposes [Gateway], [Builder], [Config],
// [Error] and value types (LoginResult, VerifyResult, HealthReport,
// MetricsSnapshot). The verify, refresh and logout state machines live under
// internal/flows and report typed failures; only this package turns them into
// an [Error] with a stable reason code.
//
// # What this package must NOT do
//
//   - Put cache backend or identity provider error text in [Error.Error].
//   - Authenticate a request whose revocation check could not be completed.
//   - Import any sub-package that re-imports authbridge (no import cycles).
//
// # Performance contract
//
// Verify of a live token costs one signature check and one cache lookup.
// Renewal adds one refresh-token check, one tombstone lookup and two cache
// writes. Login is bounded by the identity provider call.
package authbridge
