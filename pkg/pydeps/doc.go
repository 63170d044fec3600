// Package pydeps refreshes an instance's Python dependencies inside its
// virtualenv after a code sync. All failures are non-fatal by design.
package pydeps
