/*
Package backup produces and restores instance snapshots.

A snapshot captures an instance's mutable state (env file, env template,
data directory) in a timestamped directory before any mutating update
step. Retention is keep-newest-one per instance: disk usage stays bounded
and the retained snapshot is always the one matching the last update
attempt. Restore is the rollback path: it replaces the data directory
wholesale rather than merging, so the instance lands exactly on its
pre-update state.
*/
package backup
