package lupusec

import (
	"context"
	"fmt"

	"homelink/internal/integrations/lupusec/lupu"
	"homelink/pkg/host"
)

// Manufacturer is reported for every panel.
const Manufacturer = "Lupus Electronics"

// ViaDeviceID identifies the panel state device all entities hang off.
const ViaDeviceID = "lupusec_state"

// Device is anything on the panel an entity can represent: a sensor, a
// switch or the panel itself.
type Device interface {
	ID() string
	Name() string
	Refresh(ctx context.Context) error
}

// Entity exposes one panel device. Alarm panel, binary sensor and switch
// entities share it; the platform only decides which devices get one.
type Entity struct {
	executor host.Executor
	entryID  string
	system   *System
	device   Device
}

var (
	_ host.Entity             = (*Entity)(nil)
	_ host.DeviceInfoProvider = (*Entity)(nil)
	_ host.Updater            = (*Entity)(nil)
)

// NewEntity creates the entity for device of the entry's panel.
func NewEntity(executor host.Executor, entryID string, system *System, device Device) *Entity {
	return &Entity{executor: executor, entryID: entryID, system: system, device: device}
}

// UniqueID is "lupusec_{entryID}_{deviceID}".
func (e *Entity) UniqueID() string {
	return fmt.Sprintf("%s_%s_%s", Domain, e.entryID, e.device.ID())
}

// Name is the device name; the host prefixes it with the device's.
func (e *Entity) Name() string {
	return e.device.Name()
}

func (e *Entity) Device() Device {
	return e.device
}

// Update re-reads the device from the panel.
func (e *Entity) Update(ctx context.Context) error {
	return e.executor.AddExecutorJob(ctx, func() error {
		return e.device.Refresh(ctx)
	})
}

func (e *Entity) DeviceInfo() host.DeviceInfo {
	model := fmt.Sprintf("Lupusec-XT%d", e.system.Client.Model())
	return host.DeviceInfo{
		Identifiers:  []host.Identifier{{Domain: Domain, ID: e.entryID}},
		Name:         model,
		Manufacturer: Manufacturer,
		Model:        model,
		ViaDevice:    &host.Identifier{Domain: Domain, ID: ViaDeviceID},
	}
}

// SetupPlatform adds the panel to alarm_control_panel and the paired
// devices to binary_sensor or switch by their type.
func (i *Integration) SetupPlatform(ctx context.Context, entry *host.ConfigEntry, platform host.Platform, add host.AddEntitiesFunc) error {
	system, ok := i.System(entry.EntryID)
	if !ok {
		return fmt.Errorf("%s entry %s is not connected", Domain, entry.EntryID)
	}

	if platform == host.PlatformAlarmControlPanel {
		return add([]host.Entity{NewEntity(i.hass, entry.EntryID, system, system.Client.Panel())})
	}

	var want lupu.Kind
	switch platform {
	case host.PlatformBinarySensor:
		want = lupu.KindBinarySensor
	case host.PlatformSwitch:
		want = lupu.KindSwitch
	default:
		return fmt.Errorf("%s has no %s platform", Domain, platform)
	}

	var devices []*lupu.Device
	err := i.hass.AddExecutorJob(ctx, func() error {
		var err error
		devices, err = system.Client.Devices(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var entities []host.Entity
	for _, d := range devices {
		if d.Kind() == want {
			entities = append(entities, NewEntity(i.hass, entry.EntryID, system, d))
		}
	}
	if len(entities) == 0 {
		return nil
	}
	return add(entities)
}
