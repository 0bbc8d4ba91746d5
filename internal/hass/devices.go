package hass

import (
	"fmt"
	"sort"
	"sync"

	"homelink/pkg/host"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Devices is the device registry. A device is matched by any of its
// identifiers; devices persist in the store so their IDs survive restarts.
type Devices struct {
	h      *Hass
	logger *zap.Logger

	mu      sync.RWMutex
	devices map[string]*host.DeviceEntry
	byIdent map[host.Identifier]string
}

var _ host.DeviceRegistry = (*Devices)(nil)

func newDevices(h *Hass) *Devices {
	return &Devices{
		h:       h,
		logger:  h.logger.Named("device_registry"),
		devices: make(map[string]*host.DeviceEntry),
		byIdent: make(map[host.Identifier]string),
	}
}

func (d *Devices) load() error {
	stored, err := d.h.store.ListDevices()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, device := range stored {
		d.devices[device.ID] = device
		for _, ident := range device.Identifiers {
			d.byIdent[ident] = device.ID
		}
	}
	d.logger.Debug("Loaded device registry", zap.Int("count", len(stored)))
	return nil
}

// Get returns a copy of the device with the given host ID.
func (d *Devices) Get(deviceID string) (*host.DeviceEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	device, ok := d.devices[deviceID]
	if !ok {
		return nil, false
	}
	return copyDevice(device), true
}

// GetOrCreate returns the device matching any identifier in info, updating
// its metadata, or registers a new one.
func (d *Devices) GetOrCreate(entryID string, info host.DeviceInfo) (*host.DeviceEntry, error) {
	if len(info.Identifiers) == 0 {
		return nil, fmt.Errorf("device %q has no identifiers", info.Name)
	}

	d.mu.Lock()
	var device *host.DeviceEntry
	for _, ident := range info.Identifiers {
		if id, ok := d.byIdent[ident]; ok {
			device = d.devices[id]
			break
		}
	}

	created := device == nil
	if created {
		device = &host.DeviceEntry{ID: uuid.NewString()}
		d.devices[device.ID] = device
	}

	for _, ident := range info.Identifiers {
		if _, ok := d.byIdent[ident]; !ok {
			device.Identifiers = append(device.Identifiers, ident)
			d.byIdent[ident] = device.ID
		}
	}
	if !contains(device.ConfigEntries, entryID) {
		device.ConfigEntries = append(device.ConfigEntries, entryID)
	}
	if info.Name != "" {
		device.Name = info.Name
	}
	if info.Manufacturer != "" {
		device.Manufacturer = info.Manufacturer
	}
	if info.Model != "" {
		device.Model = info.Model
	}
	if info.ViaDevice != nil {
		via := *info.ViaDevice
		device.ViaDevice = &via
	}
	result := copyDevice(device)
	d.mu.Unlock()

	if err := d.h.store.SaveDevice(result); err != nil {
		return nil, fmt.Errorf("failed to persist device: %w", err)
	}

	action := "update"
	if created {
		action = "create"
		d.logger.Debug("Registered device",
			zap.String("device_id", result.ID),
			zap.String("name", result.Name))
	}
	d.h.Fire(host.Event{
		Type: host.EventDeviceRegistryUpdated,
		Data: map[string]any{"action": action, "device_id": result.ID},
	})
	return result, nil
}

// Devices lists copies of all devices ordered by name, then ID.
func (d *Devices) Devices() []*host.DeviceEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*host.DeviceEntry, 0, len(d.devices))
	for _, device := range d.devices {
		result = append(result, copyDevice(device))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// removeEntry detaches a config entry from its devices and deletes the
// devices no other entry uses.
func (d *Devices) removeEntry(configEntryID string) error {
	var errs error
	d.mu.Lock()
	for id, device := range d.devices {
		if !contains(device.ConfigEntries, configEntryID) {
			continue
		}
		remaining := device.ConfigEntries[:0]
		for _, entryID := range device.ConfigEntries {
			if entryID != configEntryID {
				remaining = append(remaining, entryID)
			}
		}
		device.ConfigEntries = remaining
		if len(remaining) > 0 {
			errs = multierr.Append(errs, d.h.store.SaveDevice(copyDevice(device)))
			continue
		}
		delete(d.devices, id)
		for _, ident := range device.Identifiers {
			delete(d.byIdent, ident)
		}
		errs = multierr.Append(errs, d.h.store.DeleteDevice(id))
	}
	d.mu.Unlock()
	return errs
}

func copyDevice(d *host.DeviceEntry) *host.DeviceEntry {
	c := *d
	c.Identifiers = append([]host.Identifier(nil), d.Identifiers...)
	c.ConfigEntries = append([]string(nil), d.ConfigEntries...)
	if d.ViaDevice != nil {
		via := *d.ViaDevice
		c.ViaDevice = &via
	}
	return &c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
