package history

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketTasks = []byte("tasks")

// BoltStore implements Store using a single bbolt bucket keyed by
// TaskID, JSON-encoded per value.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at
// <dataDir>/history.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "history.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTasks)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tasks bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(status *types.TaskStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return b.Put([]byte(status.TaskID), data)
	})
}

func (s *BoltStore) Get(id types.TaskID) (*types.TaskStatus, error) {
	var status types.TaskStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return &taskerr.NotFoundError{TaskID: id}
		}
		return json.Unmarshal(data, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *BoltStore) List() ([]*types.TaskStatus, error) {
	var out []*types.TaskStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var status types.TaskStatus
			if err := json.Unmarshal(v, &status); err != nil {
				return err
			}
			out = append(out, &status)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListSince(unixSeconds int64) ([]*types.TaskStatus, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	var filtered []*types.TaskStatus
	for _, status := range all {
		if status.Timestamp >= float64(unixSeconds) {
			filtered = append(filtered, status)
		}
	}
	return filtered, nil
}

func (s *BoltStore) Delete(id types.TaskID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.Delete([]byte(id))
	})
}
