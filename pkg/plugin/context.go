package plugin

import (
	"homelink/internal/clock"
	"homelink/pkg/host"

	"go.uber.org/zap"
)

// Context provides dependencies to integrations during construction.
type Context struct {
	// Hass is the host: config entries, registries, services and the
	// blocking-call executor.
	Hass host.Hass

	// Logger is a structured logger for the integration to use.
	// Integrations should use logger.Named(domain) for namespacing.
	Logger *zap.Logger

	// Clock drives time-dependent behaviour such as refresh throttling.
	Clock clock.Clock
}

// NewContext creates a new integration context. A nil clock falls back to
// the real clock.
func NewContext(hass host.Hass, logger *zap.Logger, c clock.Clock) *Context {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Context{
		Hass:   hass,
		Logger: logger,
		Clock:  c,
	}
}
