// Package store persists config entries and the device and entity
// registries.
package store

import (
	"errors"
	"sort"
	"sync"

	"homelink/pkg/host"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface used by the host.
type Store interface {
	SaveEntry(entry *host.ConfigEntry) error
	DeleteEntry(entryID string) error
	ListEntries() ([]*host.ConfigEntry, error)

	SaveEntity(entity *host.EntityEntry) error
	DeleteEntity(entityID string) error
	ListEntities() ([]*host.EntityEntry, error)

	SaveDevice(device *host.DeviceEntry) error
	DeleteDevice(deviceID string) error
	ListDevices() ([]*host.DeviceEntry, error)

	Close() error
}

// MemoryStore keeps everything in process memory. It backs tests and runs
// without a data directory.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]host.ConfigEntry
	entities map[string]host.EntityEntry
	devices  map[string]host.DeviceEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]host.ConfigEntry),
		entities: make(map[string]host.EntityEntry),
		devices:  make(map[string]host.DeviceEntry),
	}
}

func (s *MemoryStore) SaveEntry(entry *host.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EntryID] = *entry
	return nil
}

func (s *MemoryStore) DeleteEntry(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryID)
	return nil
}

func (s *MemoryStore) ListEntries() ([]*host.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*host.ConfigEntry, 0, len(s.entries))
	for _, e := range s.entries {
		e := e
		result = append(result, &e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntryID < result[j].EntryID })
	return result, nil
}

func (s *MemoryStore) SaveEntity(entity *host.EntityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.EntityID] = *entity
	return nil
}

func (s *MemoryStore) DeleteEntity(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, entityID)
	return nil
}

func (s *MemoryStore) ListEntities() ([]*host.EntityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*host.EntityEntry, 0, len(s.entities))
	for _, e := range s.entities {
		e := e
		result = append(result, &e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result, nil
}

func (s *MemoryStore) SaveDevice(device *host.DeviceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = *device
	return nil
}

func (s *MemoryStore) DeleteDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
	return nil
}

func (s *MemoryStore) ListDevices() ([]*host.DeviceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*host.DeviceEntry, 0, len(s.devices))
	for _, d := range s.devices {
		d := d
		result = append(result, &d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
