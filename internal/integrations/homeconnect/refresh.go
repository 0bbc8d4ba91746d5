package homeconnect

import (
	"context"
	"errors"
	"fmt"

	"homelink/internal/integrations/homeconnect/api"
	"homelink/pkg/host"

	"go.uber.org/zap"
)

// UpdateAllDevices fetches the entry's appliances, indexes them, then
// initializes and registers each one. It runs at most once per ScanInterval
// per entry; calls inside the window return nil without fetching.
//
// API errors are logged and swallowed. Any other error aborts the loop.
func (i *Integration) UpdateAllDevices(ctx context.Context, entry *host.ConfigEntry) error {
	if !i.throttle.Allow(entry.EntryID) {
		i.logger.Debug("Skipping refresh inside throttle window", zap.String("entry_id", entry.EntryID))
		return nil
	}

	session, ok := i.session(entry.EntryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotLoaded, entry.EntryID)
	}

	var appliances []Appliance
	err := i.hass.AddExecutorJob(ctx, func() error {
		var err error
		appliances, err = session.GetAppliances(ctx)
		return err
	})
	if err != nil {
		return i.handleRefreshError(err)
	}
	i.index(entry.EntryID, appliances)

	for _, appliance := range appliances {
		if err := i.hass.AddExecutorJob(ctx, func() error { return appliance.Initialize(ctx) }); err != nil {
			return i.handleRefreshError(err)
		}

		info := appliance.Info()
		_, err := i.hass.DeviceRegistry().GetOrCreate(entry.EntryID, host.DeviceInfo{
			Identifiers:  []host.Identifier{{Domain: Domain, ID: info.HaID}},
			Name:         info.Name,
			Manufacturer: info.Brand,
			Model:        info.VIB,
		})
		if err != nil {
			return fmt.Errorf("register appliance %s: %w", info.HaID, err)
		}
	}

	i.logger.Debug("Refreshed appliances",
		zap.String("entry_id", entry.EntryID),
		zap.Int("count", len(appliances)))
	return nil
}

func (i *Integration) handleRefreshError(err error) error {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		i.logger.Warn("Cannot update devices", zap.Int("status_code", httpErr.StatusCode))
		return nil
	}
	return err
}

// index replaces the entry's appliances in the haId index.
func (i *Integration) index(entryID string, appliances []Appliance) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for haID, indexed := range i.appliances {
		if indexed.entryID == entryID {
			delete(i.appliances, haID)
		}
	}
	for _, a := range appliances {
		i.appliances[a.Info().HaID] = indexedAppliance{entryID: entryID, appliance: a}
	}
}

// applianceByDeviceID resolves a host device ID to the appliance behind it.
func (i *Integration) applianceByDeviceID(deviceID string) (Appliance, error) {
	device, ok := i.hass.DeviceRegistry().Get(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	haID, ok := device.Identifier(Domain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoApplianceIdentifier, deviceID)
	}

	i.mu.RLock()
	indexed, ok := i.appliances[haID]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: appliance for device id %s", ErrApplianceNotFound, deviceID)
	}
	return indexed.appliance, nil
}
