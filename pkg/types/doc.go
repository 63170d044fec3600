/*
Package types defines the core data structures used throughout Hutch.

This package contains the fundamental types that represent Hutch's domain
model: instances, backup snapshots, sync results, update records, and the
reconciliation decision. These types are shared by the registry, backup,
gitsync, reconcile, updater, and storage packages.

All types are plain data; behavior lives in the packages that operate on
them. Records persisted to the history store are JSON-serializable.
*/
package types
