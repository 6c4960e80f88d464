// Package metric exposes pairlink metrics in Prometheus format.
//
//   - prometheus.go: the metric registry, lifecycle recorder and HTTP handler
//   - collector.go: a collector that samples session counts per state
//
// Metrics are exposed at /metrics.
package metric
