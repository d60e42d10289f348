// Package prometheus renders authbridge metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [authbridge.Gateway] and exposes an
// [http.Handler] for the /metrics route. Counter names are prefixed
// authbridge_*_total; the single histogram is
// authbridge_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate gateway state.
package prometheus
