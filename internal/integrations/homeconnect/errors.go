package homeconnect

import (
	"errors"

	"homelink/internal/integrations/homeconnect/api"
)

// Service dispatch errors. All of them are wrapped with the device ID.
var (
	ErrDeviceNotFound        = errors.New("home_connect: device not found")
	ErrNoApplianceIdentifier = errors.New("home_connect: device has no home_connect identifier")
	ErrApplianceNotFound     = errors.New("home_connect: appliance not found")
	ErrEntryNotLoaded        = errors.New("home_connect: config entry not loaded")
	ErrNoToken               = errors.New("home_connect: config entry has no token")
)

// ErrorDetails turns an API error into its key/description map. A plain
// error yields only a description; nil yields an empty map.
func ErrorDetails(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && httpErr.Key != "" {
		return map[string]any{
			"key":         httpErr.Key,
			"description": httpErr.Description,
		}
	}
	return map[string]any{"description": err.Error()}
}
