// Package registry discovers fleet instances by scanning the base
// directory and derives each instance's systemd unit name from its
// configuration.
package registry
