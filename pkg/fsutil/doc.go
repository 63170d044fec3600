// Package fsutil provides the recursive copy and ownership primitives the
// backup and reconcile packages share.
package fsutil
