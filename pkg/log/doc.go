// Package log provides the global zerolog-based logger for Hutch, with an
// optional per-run session log file that every line is teed into.
package log
