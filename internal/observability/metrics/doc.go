// Package metrics records RPC, stage and run metrics for a single CLI run and
// pushes them to a Prometheus Pushgateway when one is configured.
package metrics
