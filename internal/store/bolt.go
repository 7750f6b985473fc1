package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCollections = []byte("collections")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB file at path
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCollections); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketCollections, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Load decodes the value stored under key into dst
func (s *BoltStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCollections).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true

		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("%w: key %s: %v", ErrCorrupt, key, err)
		}
		return nil
	})

	return found, err
}

// Save writes all entries in a single transaction
func (s *BoltStore) Save(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCollections)
		for _, e := range entries {
			data, err := json.Marshal(e.Value)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", e.Key, err)
			}
			if err := bucket.Put([]byte(e.Key), data); err != nil {
				return fmt.Errorf("failed to store %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// PutRaw stores raw bytes under key without encoding
func (s *BoltStore) PutRaw(ctx context.Context, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(key), data)
	})
}

// Keys returns every stored key in byte order
func (s *BoltStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCollections).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})

	return keys, err
}

// Size returns the size of the database file in bytes
func (s *BoltStore) Size() int64 {
	var size int64
	s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
