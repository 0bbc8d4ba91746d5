package host

import (
	"fmt"
	"time"
)

// Platform names an entity platform an integration can forward a config
// entry to.
type Platform string

// Platforms known to the host.
const (
	PlatformAlarmControlPanel Platform = "alarm_control_panel"
	PlatformBinarySensor      Platform = "binary_sensor"
	PlatformLight             Platform = "light"
	PlatformNumber            Platform = "number"
	PlatformSensor            Platform = "sensor"
	PlatformSwitch            Platform = "switch"
	PlatformTime              Platform = "time"
)

// Config entry sources.
const (
	SourceUser   = "user"
	SourceImport = "import"
)

// EntryState is the lifecycle state of a config entry.
type EntryState string

const (
	StateNotLoaded      EntryState = "not_loaded"
	StateLoaded         EntryState = "loaded"
	StateSetupError     EntryState = "setup_error"
	StateMigrationError EntryState = "migration_error"
)

// ConfigEntry is one configured account or device instance of an
// integration. The host owns it; integrations only change it through
// ConfigEntries.UpdateEntry.
type ConfigEntry struct {
	EntryID      string         `json:"entry_id"`
	Domain       string         `json:"domain"`
	Title        string         `json:"title"`
	Version      int            `json:"version"`
	MinorVersion int            `json:"minor_version"`
	Source       string         `json:"source"`
	UniqueID     string         `json:"unique_id,omitempty"`
	Data         map[string]any `json:"data"`
	State        EntryState     `json:"state"`
}

// String returns the data value stored under key, or "" if it is missing or
// not a string.
func (e *ConfigEntry) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EntryUpdate carries the fields an integration may change on an entry.
// Nil fields are left untouched.
type EntryUpdate struct {
	Title        *string
	MinorVersion *int
	Data         map[string]any
}

// FlowResult is what an import flow hands back to the host to create an
// entry from.
type FlowResult struct {
	Title    string
	UniqueID string
	Data     map[string]any
}

// Identifier ties a device to an integration-scoped identifier, e.g.
// (home_connect, SIEMENS-HB676G5S6-68A40E251CBD).
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

func (i Identifier) String() string {
	return fmt.Sprintf("%s:%s", i.Domain, i.ID)
}

// DeviceInfo is the metadata an integration provides for the device
// registry.
type DeviceInfo struct {
	Identifiers  []Identifier `json:"identifiers"`
	Name         string       `json:"name"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Model        string       `json:"model,omitempty"`
	ViaDevice    *Identifier  `json:"via_device,omitempty"`
}

// DeviceEntry is a device as stored by the device registry.
type DeviceEntry struct {
	ID            string       `json:"id"`
	ConfigEntries []string     `json:"config_entries"`
	Identifiers   []Identifier `json:"identifiers"`
	Name          string       `json:"name"`
	Manufacturer  string       `json:"manufacturer,omitempty"`
	Model         string       `json:"model,omitempty"`
	ViaDevice     *Identifier  `json:"via_device,omitempty"`
}

// Identifier returns the identifier this device carries for domain.
func (d *DeviceEntry) Identifier(domain string) (string, bool) {
	for _, ident := range d.Identifiers {
		if ident.Domain == domain {
			return ident.ID, true
		}
	}
	return "", false
}

// EntityEntry is an entity as stored by the entity registry. Unique IDs are
// scoped to (Integration, Platform).
type EntityEntry struct {
	EntityID      string   `json:"entity_id"`
	UniqueID      string   `json:"unique_id"`
	Integration   string   `json:"integration"`
	Platform      Platform `json:"platform"`
	ConfigEntryID string   `json:"config_entry_id"`
	DeviceID      string   `json:"device_id,omitempty"`
	Name          string   `json:"name,omitempty"`
}

// Event is published on the host event bus.
type Event struct {
	Type      string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	TimeFired time.Time      `json:"time_fired"`
}

// Event types fired by the host.
const (
	EventConfigEntryState      = "config_entry_state"
	EventDeviceRegistryUpdated = "device_registry_updated"
	EventEntityRegistryUpdated = "entity_registry_updated"
	EventCallService           = "call_service"
)

// ServiceCall is a validated service invocation. Data holds whatever the
// service's schema produced.
type ServiceCall struct {
	Domain  string
	Service string
	Data    any
}

// ServiceInfo describes a registered service.
type ServiceInfo struct {
	Domain  string `json:"domain"`
	Service string `json:"service"`
}
