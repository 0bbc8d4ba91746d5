package lupusec

import (
	"fmt"

	"homelink/pkg/plugin"
)

func init() {
	plugin.Register(plugin.IntegrationInfo{
		Domain:      Domain,
		Description: "Lupusec XT1/XT2 alarm panels over the local network",
		Priority:    plugin.PriorityDefault,
		Order:       50,
		Factory:     createIntegration,
	})
}

func createIntegration(ctx *plugin.Context) (plugin.Integration, error) {
	if ctx.Hass == nil {
		return nil, fmt.Errorf("%s integration requires a host", Domain)
	}
	return New(ctx.Hass, ctx.Logger), nil
}
