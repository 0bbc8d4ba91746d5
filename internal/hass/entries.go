package hass

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Entries manages config entries and their lifecycle. It implements
// host.ConfigEntries.
//
// The *host.ConfigEntry handed out is the stored one: integrations see
// updates made through UpdateEntry. Its State is written under the lock;
// read it through State or Snapshot.
type Entries struct {
	h      *Hass
	logger *zap.Logger

	mu        sync.RWMutex
	entries   map[string]*host.ConfigEntry
	platforms map[string]map[host.Platform]bool
}

var _ host.ConfigEntries = (*Entries)(nil)

func newEntries(h *Hass) *Entries {
	return &Entries{
		h:         h,
		logger:    h.logger.Named("config_entries"),
		entries:   make(map[string]*host.ConfigEntry),
		platforms: make(map[string]map[host.Platform]bool),
	}
}

func (m *Entries) load() error {
	stored, err := m.h.store.ListEntries()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range stored {
		entry.State = host.StateNotLoaded
		m.entries[entry.EntryID] = entry
	}
	m.logger.Debug("Loaded config entries", zap.Int("count", len(stored)))
	return nil
}

// Get returns the entry with the given ID.
func (m *Entries) Get(entryID string) (*host.ConfigEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[entryID]
	return entry, ok
}

// Entries lists the entries of domain ("" for all) ordered by title, then ID.
func (m *Entries) Entries(domain string) []*host.ConfigEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*host.ConfigEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if domain == "" || entry.Domain == domain {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Title != result[j].Title {
			return result[i].Title < result[j].Title
		}
		return result[i].EntryID < result[j].EntryID
	})
	return result
}

// Snapshot lists copies of the entries of domain ("" for all), in the order
// Entries uses.
func (m *Entries) Snapshot(domain string) []host.ConfigEntry {
	entries := m.Entries(domain)

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]host.ConfigEntry, len(entries))
	for i, entry := range entries {
		result[i] = *entry
	}
	return result
}

// State returns the lifecycle state of an entry, or not_loaded if it does
// not exist.
func (m *Entries) State(entryID string) host.EntryState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return host.StateNotLoaded
	}
	return entry.State
}

// Add stores a new entry. The entry ID is assigned here; a version left at
// zero defaults to the integration's current version, or 1.1.
func (m *Entries) Add(entry *host.ConfigEntry) (*host.ConfigEntry, error) {
	if entry.Domain == "" {
		return nil, fmt.Errorf("config entry has no domain")
	}

	if entry.Version == 0 {
		entry.Version, entry.MinorVersion = 1, 1
		if integration, ok := m.h.integration(entry.Domain); ok {
			if v, ok := integration.(plugin.Versioned); ok {
				entry.Version, entry.MinorVersion = v.EntryVersion()
			}
		}
	}
	if entry.Source == "" {
		entry.Source = host.SourceUser
	}
	if entry.Data == nil {
		entry.Data = make(map[string]any)
	}

	m.mu.Lock()
	if entry.UniqueID != "" {
		for _, existing := range m.entries {
			if existing.Domain == entry.Domain && existing.UniqueID == entry.UniqueID {
				m.mu.Unlock()
				return nil, fmt.Errorf("%s %s: %w", entry.Domain, entry.UniqueID, host.ErrAlreadyConfigured)
			}
		}
	}
	entry.EntryID = uuid.NewString()
	entry.State = host.StateNotLoaded
	m.entries[entry.EntryID] = entry
	m.mu.Unlock()

	if err := m.h.store.SaveEntry(entry); err != nil {
		m.mu.Lock()
		delete(m.entries, entry.EntryID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to persist config entry: %w", err)
	}

	m.logger.Info("Added config entry",
		zap.String("entry_id", entry.EntryID),
		zap.String("domain", entry.Domain),
		zap.String("title", entry.Title))
	return entry, nil
}

// Remove unloads an entry if needed and deletes it with its entities. Its
// devices are dropped unless another entry still uses them.
func (m *Entries) Remove(ctx context.Context, entryID string) error {
	if _, ok := m.Get(entryID); !ok {
		return fmt.Errorf("%s: %w", entryID, host.ErrEntryNotFound)
	}
	if m.State(entryID) == host.StateLoaded {
		if err := m.Unload(ctx, entryID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.entries, entryID)
	delete(m.platforms, entryID)
	m.mu.Unlock()

	var errs error
	errs = multierr.Append(errs, m.h.entities.removeEntry(entryID))
	errs = multierr.Append(errs, m.h.devices.removeEntry(entryID))
	errs = multierr.Append(errs, m.h.store.DeleteEntry(entryID))
	return errs
}

// UpdateEntry applies update to entry and persists it.
func (m *Entries) UpdateEntry(entry *host.ConfigEntry, update host.EntryUpdate) error {
	m.mu.Lock()
	stored, ok := m.entries[entry.EntryID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", entry.EntryID, host.ErrEntryNotFound)
	}
	if update.Title != nil {
		stored.Title = *update.Title
	}
	if update.MinorVersion != nil {
		stored.MinorVersion = *update.MinorVersion
	}
	if update.Data != nil {
		stored.Data = update.Data
	}
	if entry != stored {
		*entry = *stored
	}
	snapshot := *stored
	m.mu.Unlock()

	if err := m.h.store.SaveEntry(&snapshot); err != nil {
		return fmt.Errorf("failed to persist config entry: %w", err)
	}
	return nil
}

// FlowInit runs the integration's import flow and creates an entry from the
// result, then sets the new entry up.
func (m *Entries) FlowInit(ctx context.Context, domain, source string, data map[string]any) (*host.ConfigEntry, error) {
	integration, ok := m.h.integration(domain)
	if !ok {
		return nil, fmt.Errorf("%s: %w", domain, host.ErrNoFlowHandler)
	}
	handler, ok := integration.(plugin.ImportFlowHandler)
	if !ok || source != host.SourceImport {
		return nil, fmt.Errorf("%s (%s): %w", domain, source, host.ErrNoFlowHandler)
	}

	result, err := handler.ImportFlow(ctx, data)
	if err != nil {
		return nil, err
	}

	entry, err := m.Add(&host.ConfigEntry{
		Domain:   domain,
		Title:    result.Title,
		Source:   source,
		UniqueID: result.UniqueID,
		Data:     result.Data,
	})
	if err != nil {
		return nil, err
	}

	if err := m.Setup(ctx, entry.EntryID); err != nil {
		m.logger.Warn("Imported entry failed to set up",
			zap.String("entry_id", entry.EntryID),
			zap.Error(err))
	}
	return entry, nil
}

// Setup migrates the entry if its integration reports a newer version, then
// runs SetupEntry. The entry ends up loaded, setup_error or migration_error.
func (m *Entries) Setup(ctx context.Context, entryID string) error {
	entry, ok := m.Get(entryID)
	if !ok {
		return fmt.Errorf("%s: %w", entryID, host.ErrEntryNotFound)
	}
	integration, ok := m.h.integration(entry.Domain)
	if !ok {
		return fmt.Errorf("no integration for domain %s", entry.Domain)
	}

	if err := m.migrate(ctx, integration, entry); err != nil {
		m.setState(entry, host.StateMigrationError)
		return fmt.Errorf("migrate %s: %w", entryID, err)
	}

	if err := integration.SetupEntry(ctx, entry); err != nil {
		m.setState(entry, host.StateSetupError)
		return fmt.Errorf("setup %s: %w", entryID, err)
	}

	m.setState(entry, host.StateLoaded)
	m.logger.Info("Config entry loaded",
		zap.String("entry_id", entryID),
		zap.String("domain", entry.Domain))
	return nil
}

func (m *Entries) migrate(ctx context.Context, integration plugin.Integration, entry *host.ConfigEntry) error {
	versioned, ok := integration.(plugin.Versioned)
	if !ok {
		return nil
	}
	major, minor := versioned.EntryVersion()
	if major < entry.Version || (major == entry.Version && minor <= entry.MinorVersion) {
		return nil
	}
	migrator, ok := integration.(plugin.Migrator)
	if !ok {
		return nil
	}

	m.logger.Info("Migrating config entry",
		zap.String("entry_id", entry.EntryID),
		zap.Int("version", entry.Version),
		zap.Int("minor_version", entry.MinorVersion))
	return migrator.MigrateEntry(ctx, entry)
}

// Unload calls UnloadEntry and marks the entry not_loaded when it succeeds.
func (m *Entries) Unload(ctx context.Context, entryID string) error {
	entry, ok := m.Get(entryID)
	if !ok {
		return fmt.Errorf("%s: %w", entryID, host.ErrEntryNotFound)
	}
	integration, ok := m.h.integration(entry.Domain)
	if !ok {
		return fmt.Errorf("no integration for domain %s", entry.Domain)
	}

	unloaded, err := integration.UnloadEntry(ctx, entry)
	if err != nil {
		return fmt.Errorf("unload %s: %w", entryID, err)
	}
	if !unloaded {
		return fmt.Errorf("unload %s: integration refused", entryID)
	}
	m.setState(entry, host.StateNotLoaded)
	return nil
}

func (m *Entries) setState(entry *host.ConfigEntry, state host.EntryState) {
	m.mu.Lock()
	entry.State = state
	m.mu.Unlock()

	m.h.Fire(host.Event{
		Type: host.EventConfigEntryState,
		Data: map[string]any{
			"entry_id": entry.EntryID,
			"domain":   entry.Domain,
			"state":    string(state),
		},
	})
}

// ForwardEntrySetups sets up platforms for entry. Entities the integration
// adds are registered in the device and entity registries. A platform that
// fails is not recorded as loaded; the others stay set up and the failures
// are returned together.
func (m *Entries) ForwardEntrySetups(ctx context.Context, entry *host.ConfigEntry, platforms []host.Platform) error {
	integration, ok := m.h.integration(entry.Domain)
	if !ok {
		return fmt.Errorf("no integration for domain %s", entry.Domain)
	}
	setup, _ := integration.(plugin.PlatformSetup)

	var errs error
	for _, platform := range platforms {
		if setup != nil {
			if err := setup.SetupPlatform(ctx, entry, platform, m.adder(entry, platform)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("platform %s: %w", platform, err))
				continue
			}
		}

		m.mu.Lock()
		if m.platforms[entry.EntryID] == nil {
			m.platforms[entry.EntryID] = make(map[host.Platform]bool)
		}
		m.platforms[entry.EntryID][platform] = true
		m.mu.Unlock()
	}
	return errs
}

func (m *Entries) adder(entry *host.ConfigEntry, platform host.Platform) host.AddEntitiesFunc {
	return func(entities []host.Entity) error {
		var errs error
		for _, entity := range entities {
			reg := host.EntityEntry{
				UniqueID:      entity.UniqueID(),
				Integration:   entry.Domain,
				Platform:      platform,
				ConfigEntryID: entry.EntryID,
				Name:          entity.Name(),
			}
			if provider, ok := entity.(host.DeviceInfoProvider); ok {
				device, err := m.h.devices.GetOrCreate(entry.EntryID, provider.DeviceInfo())
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				reg.DeviceID = device.ID
			}

			registered, err := m.h.entities.Register(reg)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			m.h.entities.attach(registered.EntityID, entry.EntryID, platform, entity)
		}
		return errs
	}
}

// LoadedPlatforms returns the platforms currently set up for an entry.
func (m *Entries) LoadedPlatforms(entryID string) []host.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]host.Platform, 0, len(m.platforms[entryID]))
	for p := range m.platforms[entryID] {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// UnloadPlatforms tears platforms down. Platforms that were never set up
// are skipped, and entities a failed platform attached are detached too.
func (m *Entries) UnloadPlatforms(ctx context.Context, entry *host.ConfigEntry, platforms []host.Platform) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	loaded := m.platforms[entry.EntryID]
	for _, platform := range platforms {
		delete(loaded, platform)
	}
	if len(loaded) == 0 {
		delete(m.platforms, entry.EntryID)
	}
	m.mu.Unlock()

	for _, platform := range platforms {
		m.h.entities.detach(entry.EntryID, platform)
	}
	return true, nil
}
