// Package config loads the host-wide Hutch configuration from YAML with
// sensible built-in defaults.
package config
