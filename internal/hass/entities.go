package hass

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"homelink/pkg/host"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type liveEntity struct {
	entryID  string
	platform host.Platform
	entity   host.Entity
}

// Entities is the entity registry. Registry entries persist in the store;
// live entity objects are attached while their platform is loaded.
type Entities struct {
	h      *Hass
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*host.EntityEntry
	live    map[string]liveEntity
}

var _ host.EntityRegistry = (*Entities)(nil)

func newEntities(h *Hass) *Entities {
	return &Entities{
		h:       h,
		logger:  h.logger.Named("entity_registry"),
		entries: make(map[string]*host.EntityEntry),
		live:    make(map[string]liveEntity),
	}
}

func (r *Entities) load() error {
	stored, err := r.h.store.ListEntities()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range stored {
		r.entries[e.EntityID] = e
	}
	r.logger.Debug("Loaded entity registry", zap.Int("count", len(stored)))
	return nil
}

// Get returns a copy of the registry entry for entityID.
func (r *Entities) Get(entityID string) (*host.EntityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entityID]
	if !ok {
		return nil, false
	}
	c := *e
	return &c, true
}

// Entries lists copies of the entries of a config entry ("" for all),
// ordered by entity ID.
func (r *Entities) Entries(configEntryID string) []*host.EntityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*host.EntityEntry, 0)
	for _, e := range r.entries {
		if configEntryID == "" || e.ConfigEntryID == configEntryID {
			c := *e
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// Register stores entry, or refreshes the existing entry with the same
// (integration, platform, unique ID). New entries get an entity ID derived
// from the platform and name.
func (r *Entities) Register(entry host.EntityEntry) (*host.EntityEntry, error) {
	if entry.UniqueID == "" || entry.Integration == "" || entry.Platform == "" {
		return nil, fmt.Errorf("entity registration needs unique id, integration and platform")
	}

	r.mu.Lock()
	existing := r.findLocked(entry.Integration, entry.Platform, entry.UniqueID)
	created := existing == nil
	if created {
		entry.EntityID = r.generateIDLocked(entry.Platform, entry.Name, entry.UniqueID)
		existing = &entry
		r.entries[entry.EntityID] = existing
	} else {
		existing.ConfigEntryID = entry.ConfigEntryID
		existing.DeviceID = entry.DeviceID
		existing.Name = entry.Name
	}
	snapshot := *existing
	r.mu.Unlock()

	if err := r.h.store.SaveEntity(&snapshot); err != nil {
		if created {
			r.mu.Lock()
			delete(r.entries, snapshot.EntityID)
			r.mu.Unlock()
		}
		return nil, fmt.Errorf("failed to persist entity %s: %w", snapshot.EntityID, err)
	}

	action := "update"
	if created {
		action = "create"
	}
	r.h.Fire(host.Event{
		Type: host.EventEntityRegistryUpdated,
		Data: map[string]any{"action": action, "entity_id": snapshot.EntityID},
	})
	return &snapshot, nil
}

// MigrateEntries offers every entity of a config entry to fn and applies the
// unique IDs it returns. fn runs without the registry lock held. A new ID
// that collides with another entity aborts the migration; entities already
// rewritten stay rewritten.
func (r *Entities) MigrateEntries(ctx context.Context, configEntryID string, fn host.MigrateFunc) error {
	for _, e := range r.Entries(configEntryID) {
		if err := ctx.Err(); err != nil {
			return err
		}

		newID := fn(e)
		if newID == "" || newID == e.UniqueID {
			continue
		}

		r.mu.Lock()
		if conflict := r.findLocked(e.Integration, e.Platform, newID); conflict != nil {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s cannot take %q from %s",
				host.ErrUniqueIDConflict, e.EntityID, newID, conflict.EntityID)
		}
		stored, ok := r.entries[e.EntityID]
		if !ok {
			r.mu.Unlock()
			continue
		}
		oldID := stored.UniqueID
		stored.UniqueID = newID
		snapshot := *stored
		r.mu.Unlock()

		if err := r.h.store.SaveEntity(&snapshot); err != nil {
			return fmt.Errorf("failed to persist entity %s: %w", snapshot.EntityID, err)
		}
		r.logger.Info("Migrated entity unique id",
			zap.String("entity_id", snapshot.EntityID),
			zap.String("from", oldID),
			zap.String("to", newID))
		r.h.Fire(host.Event{
			Type: host.EventEntityRegistryUpdated,
			Data: map[string]any{"action": "update", "entity_id": snapshot.EntityID},
		})
	}
	return nil
}

func (r *Entities) findLocked(integration string, platform host.Platform, uniqueID string) *host.EntityEntry {
	for _, e := range r.entries {
		if e.Integration == integration && e.Platform == platform && e.UniqueID == uniqueID {
			return e
		}
	}
	return nil
}

func (r *Entities) generateIDLocked(platform host.Platform, name, uniqueID string) string {
	base := slugify(name)
	if base == "" {
		base = slugify(uniqueID)
	}
	candidate := fmt.Sprintf("%s.%s", platform, base)
	for i := 2; ; i++ {
		if _, taken := r.entries[candidate]; !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%s_%d", platform, base, i)
	}
}

func (r *Entities) attach(entityID, entryID string, platform host.Platform, entity host.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[entityID] = liveEntity{entryID: entryID, platform: platform, entity: entity}
}

func (r *Entities) detach(entryID string, platform host.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, l := range r.live {
		if l.entryID == entryID && l.platform == platform {
			delete(r.live, id)
		}
	}
}

func (r *Entities) liveEntities() map[string]liveEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]liveEntity, len(r.live))
	for id, l := range r.live {
		result[id] = l
	}
	return result
}

// removeEntry deletes every registry entry of a config entry.
func (r *Entities) removeEntry(configEntryID string) error {
	var errs error
	for _, e := range r.Entries(configEntryID) {
		r.mu.Lock()
		delete(r.entries, e.EntityID)
		delete(r.live, e.EntityID)
		r.mu.Unlock()
		errs = multierr.Append(errs, r.h.store.DeleteEntity(e.EntityID))
	}
	return errs
}

func slugify(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
