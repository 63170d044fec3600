// Package storage persists update history and the latest backup handle
// per instance in an embedded bbolt database, so "what happened and where
// is the backup" survives the process.
package storage
