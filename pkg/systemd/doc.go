// Package systemd is the service lifecycle controller: it stops, starts,
// and observes the systemd unit owning each instance's process.
package systemd
