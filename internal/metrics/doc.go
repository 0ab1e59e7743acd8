// Package metrics exposes service counters (batches by status, files
// processed/skipped, download timeouts, stored targets) in Prometheus text
// exposition format on /metrics.
package metrics
