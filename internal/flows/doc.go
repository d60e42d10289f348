// Package flows contains pure-function orchestrators for every Gateway operation.
//
// Each flow function (RunVerify, RunRefresh, RunLogin, etc.) accepts a typed
// dependency struct and returns a result carrying either the success payload
// or a classified [Failure]. Flows never panic and never return raw backend
// errors to callers outside the result.
//
// # Verification state machine
//
// RunVerify drives an access token through Verifying, CheckingCache and
// Refreshing. A cached successor is substituted at most once per attempt; a
// second expiry in the same attempt is terminal.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token codec, the cache store and the
// identity verifier. They do NOT own any of these resources; ownership stays
// with the Gateway. All cross-request coordination happens through the cache.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authbridge (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
