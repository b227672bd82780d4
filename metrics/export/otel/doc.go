// Package otel bridges the engine's internal counters to an OpenTelemetry
// meter.
//
// The exporter registers observable counters that read the engine's metrics
// snapshot on every collection cycle. The engine itself stays free of any
// OpenTelemetry dependency; hot paths only touch padded atomics.
package otel
