// Package otel provides OpenTelemetry metric exporter bindings for authbridge
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each gateway
// counter and an Int64ObservableGauge per histogram bucket. A single callback
// reads [authbridge.Gateway.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate gateway state.
package otel
