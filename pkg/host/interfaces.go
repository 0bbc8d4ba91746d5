// Package host defines the contracts the host process offers to
// integrations: config entries, the device and entity registries, service
// dispatch, the blocking-call executor and OAuth2 credentials.
//
// Integrations depend only on these interfaces. The implementation lives in
// internal/hass.
package host

import (
	"context"

	"golang.org/x/oauth2"
)

// Config gives integrations access to their block of the YAML configuration.
type Config interface {
	// Section decodes the block keyed by domain into out. It reports false
	// when the block is absent.
	Section(domain string, out any) (bool, error)
}

// ConfigEntries manages config entries and their lifecycle.
type ConfigEntries interface {
	Get(entryID string) (*ConfigEntry, bool)
	// Entries lists the entries of domain, or all entries when domain is "".
	Entries(domain string) []*ConfigEntry
	// Snapshot is like Entries but returns copies, safe to read while
	// entries are being set up on other goroutines.
	Snapshot(domain string) []ConfigEntry
	// State returns the current lifecycle state of an entry.
	State(entryID string) EntryState
	UpdateEntry(entry *ConfigEntry, update EntryUpdate) error

	// FlowInit starts a config flow for domain, e.g. an import of legacy
	// YAML configuration.
	FlowInit(ctx context.Context, domain, source string, data map[string]any) (*ConfigEntry, error)

	// ForwardEntrySetups asks the host to set up platforms for entry.
	ForwardEntrySetups(ctx context.Context, entry *ConfigEntry, platforms []Platform) error

	// UnloadPlatforms tears down platforms for entry and reports whether all
	// of them unloaded. Platforms that were never set up are skipped.
	UnloadPlatforms(ctx context.Context, entry *ConfigEntry, platforms []Platform) (bool, error)
}

// DeviceRegistry resolves host device IDs.
type DeviceRegistry interface {
	Get(deviceID string) (*DeviceEntry, bool)
	GetOrCreate(entryID string, info DeviceInfo) (*DeviceEntry, error)
	Devices() []*DeviceEntry
}

// MigrateFunc returns the new unique ID for an entity, or "" to leave it.
type MigrateFunc func(entry *EntityEntry) string

// EntityRegistry stores entity identity.
type EntityRegistry interface {
	Get(entityID string) (*EntityEntry, bool)
	// Entries lists the entities of a config entry, or all entities when
	// configEntryID is "".
	Entries(configEntryID string) []*EntityEntry
	Register(entry EntityEntry) (*EntityEntry, error)
	MigrateEntries(ctx context.Context, configEntryID string, fn MigrateFunc) error
}

// Schema validates raw service data and returns the decoded payload.
type Schema interface {
	Validate(data map[string]any) (any, error)
}

// ServiceHandler executes a validated service call.
type ServiceHandler func(ctx context.Context, call ServiceCall) error

// Services is the service-call dispatcher.
type Services interface {
	Register(domain, service string, schema Schema, handler ServiceHandler)
	Has(domain, service string) bool
	Call(ctx context.Context, domain, service string, data map[string]any) error
	Services() []ServiceInfo
}

// Executor runs blocking work off the caller's goroutine on a bounded pool.
type Executor interface {
	AddExecutorJob(ctx context.Context, fn func() error) error
}

// OAuth2 resolves the OAuth2 implementation for an entry.
type OAuth2 interface {
	OAuth2Implementation(ctx context.Context, entry *ConfigEntry) (*oauth2.Config, error)
}

// Entity is anything a platform setup hands to the host.
type Entity interface {
	UniqueID() string
	Name() string
}

// DeviceInfoProvider is implemented by entities that belong to a device.
type DeviceInfoProvider interface {
	DeviceInfo() DeviceInfo
}

// Updater is implemented by entities that refresh themselves when polled.
type Updater interface {
	Update(ctx context.Context) error
}

// AddEntitiesFunc registers entities for a platform.
type AddEntitiesFunc func(entities []Entity) error

// Hass bundles every host collaborator.
type Hass interface {
	ConfigEntries() ConfigEntries
	DeviceRegistry() DeviceRegistry
	EntityRegistry() EntityRegistry
	Services() Services
	Executor
	OAuth2
	Fire(event Event)
	Subscribe(fn func(Event)) (unsubscribe func())
}
