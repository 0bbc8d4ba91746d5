package homeconnect

import (
	"fmt"

	"homelink/pkg/plugin"
)

func init() {
	plugin.Register(plugin.IntegrationInfo{
		Domain:      Domain,
		Description: "BSH Home Connect appliances via the vendor cloud API",
		Priority:    plugin.PriorityDefault,
		Order:       40,
		Factory:     createIntegration,
	})
}

// createIntegration creates the integration from the plugin context.
func createIntegration(ctx *plugin.Context) (plugin.Integration, error) {
	if ctx.Hass == nil {
		return nil, fmt.Errorf("%s integration requires a host", Domain)
	}
	return New(ctx.Hass, ctx.Logger, ctx.Clock), nil
}
