// Package otel provides OpenTelemetry metric bindings for authkit
// counters and histograms.
//
// [NewExporter] registers an Int64ObservableCounter per core counter
// and Int64ObservableGauge per histogram bucket. A single callback
// reads a metrics snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate service state.
package otel
