/*
Package health probes a restarted instance application over HTTP.

systemd observing a unit as active proves the process exists, not that
the application inside it finished booting. The probe closes that gap:
it reads the application port from the instance env file and polls an
HTTP path with a bounded retry loop. Probing is optional and off by
default; it is enabled by configuring a probe path.
*/
package health
