// Package telemetry stores power and environment readings reported by
// controller nodes and answers the energy queries behind the dashboard.
//
// SQLite holds the append-only series. A Recorder optionally mirrors every
// reading into a long-term Sink (InfluxDB), and a Pruner enforces the
// retention window.
package telemetry
