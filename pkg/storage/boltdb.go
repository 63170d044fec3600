package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/hutchd/hutch/pkg/types"
)

var (
	// Bucket names
	bucketUpdates = []byte("updates")
	bucketBackups = []byte("backups")
)

// BoltStore persists update history and the latest backup handle per
// instance in a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketUpdates, bucketBackups} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// RecordUpdate appends an update attempt to the history and, when the
// attempt produced a snapshot, remembers it as the instance's latest
// backup.
func (s *BoltStore) RecordUpdate(record *types.UpdateRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		// RFC3339Nano keys sort chronologically per instance.
		key := fmt.Sprintf("%s/%s", record.InstanceID, record.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"))
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}

		if record.BackupDir != "" {
			if err := tx.Bucket(bucketBackups).Put([]byte(record.InstanceID), []byte(record.BackupDir)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListUpdates returns the recorded update attempts, oldest first. An empty
// instanceID lists attempts for every instance.
func (s *BoltStore) ListUpdates(instanceID string) ([]*types.UpdateRecord, error) {
	var records []*types.UpdateRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates)
		return b.ForEach(func(k, v []byte) error {
			var record types.UpdateRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if instanceID != "" && record.InstanceID != instanceID {
				return nil
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}

// LatestBackup returns the backup directory recorded for the instance's
// most recent snapshot.
func (s *BoltStore) LatestBackup(instanceID string) (string, error) {
	var dir string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBackups).Get([]byte(instanceID))
		if data == nil {
			return fmt.Errorf("no backup recorded for instance: %s", instanceID)
		}
		dir = string(data)
		return nil
	})
	return dir, err
}
