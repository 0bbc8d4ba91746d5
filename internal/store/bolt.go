package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"homelink/pkg/host"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries  = []byte("config_entries")
	bucketEntities = []byte("entity_registry")
	bucketDevices  = []byte("device_registry")
)

// BoltStore implements Store using BoltDB. Records are JSON values keyed by
// entry, entity or device ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketEntries, bucketEntities, bucketDevices} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveEntry(entry *host.ConfigEntry) error {
	return s.put(bucketEntries, entry.EntryID, entry)
}

func (s *BoltStore) DeleteEntry(entryID string) error {
	return s.delete(bucketEntries, entryID)
}

func (s *BoltStore) ListEntries() ([]*host.ConfigEntry, error) {
	var entries []*host.ConfigEntry
	err := s.forEach(bucketEntries, func(v []byte) error {
		var entry host.ConfigEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
		entries = append(entries, &entry)
		return nil
	})
	return entries, err
}

func (s *BoltStore) SaveEntity(entity *host.EntityEntry) error {
	return s.put(bucketEntities, entity.EntityID, entity)
}

func (s *BoltStore) DeleteEntity(entityID string) error {
	return s.delete(bucketEntities, entityID)
}

func (s *BoltStore) ListEntities() ([]*host.EntityEntry, error) {
	var entities []*host.EntityEntry
	err := s.forEach(bucketEntities, func(v []byte) error {
		var entity host.EntityEntry
		if err := json.Unmarshal(v, &entity); err != nil {
			return err
		}
		entities = append(entities, &entity)
		return nil
	})
	return entities, err
}

func (s *BoltStore) SaveDevice(device *host.DeviceEntry) error {
	return s.put(bucketDevices, device.ID, device)
}

func (s *BoltStore) DeleteDevice(deviceID string) error {
	return s.delete(bucketDevices, deviceID)
}

func (s *BoltStore) ListDevices() ([]*host.DeviceEntry, error) {
	var devices []*host.DeviceEntry
	err := s.forEach(bucketDevices, func(v []byte) error {
		var device host.DeviceEntry
		if err := json.Unmarshal(v, &device); err != nil {
			return err
		}
		devices = append(devices, &device)
		return nil
	})
	return devices, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

// forEach visits values in key order.
func (s *BoltStore) forEach(bucket []byte, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}
