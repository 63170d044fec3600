// Package metrics defines the Prometheus collectors for the update
// pipeline. During batch runs the CLI can expose them over HTTP with
// Handler.
package metrics
