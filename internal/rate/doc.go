// Package rate implements the Redis-backed fixed-window counter that
// throttles repeated failed logins from one client.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. Keys are <prefix>throttle:login:<client>.
// A successful login clears the counter.
//
// # What this package must NOT do
//
//   - Decide what a "client" is. Callers pass an opaque key (the client IP).
//   - Be imported outside the authbridge module.
package rate
