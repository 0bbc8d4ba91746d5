// Package plugin provides the integration contract and registry for homelink.
// Integrations register themselves with the global registry from init()
// functions, so the set of integrations is chosen at compile time and a
// private build can override a public one by priority.
package plugin

import (
	"context"
	"errors"

	"homelink/pkg/host"

	"golang.org/x/oauth2"
)

// ErrSetupFailed reports a handled setup failure. The integration has
// already logged the cause; the host leaves the entry in setup_error.
var ErrSetupFailed = errors.New("integration setup failed")

// Integration is the contract every integration implements. The host
// calls these hooks at its own lifecycle points; an integration never
// drives its own loop.
type Integration interface {
	// Domain returns the unique identifier of the integration, e.g.
	// "home_connect". It keys registration, config entries and services.
	Domain() string

	// Setup runs once per process before any entry is set up.
	// - Registers services
	// - Imports legacy YAML configuration
	Setup(ctx context.Context, cfg host.Config) error

	// SetupEntry sets up one config entry.
	// - Connects to the vendor API
	// - Forwards the entry to its platforms
	// - Returns an error wrapping ErrSetupFailed for handled failures
	SetupEntry(ctx context.Context, entry *host.ConfigEntry) error

	// UnloadEntry tears down one config entry and reports whether the host
	// may consider it unloaded.
	UnloadEntry(ctx context.Context, entry *host.ConfigEntry) (bool, error)
}

// Versioned is implemented by integrations whose config entries carry a
// schema version. The host migrates entries older than this before setup.
type Versioned interface {
	EntryVersion() (major, minor int)
}

// Migrator is implemented by integrations that can migrate stored entries.
type Migrator interface {
	MigrateEntry(ctx context.Context, entry *host.ConfigEntry) error
}

// ImportFlowHandler is implemented by integrations that accept config
// entries imported from YAML.
type ImportFlowHandler interface {
	ImportFlow(ctx context.Context, data map[string]any) (*host.FlowResult, error)
}

// ImportWaiter is implemented by integrations whose Setup starts import
// flows in the background. The host waits for them before it stops.
type ImportWaiter interface {
	WaitImports()
}

// PlatformSetup is implemented by integrations that provide entities for
// the platforms they forward to.
type PlatformSetup interface {
	SetupPlatform(ctx context.Context, entry *host.ConfigEntry, platform host.Platform, add host.AddEntitiesFunc) error
}

// Poller is implemented by integrations that refresh vendor state on the
// host's poll interval. Poll is called once per loaded entry.
type Poller interface {
	Poll(ctx context.Context, entry *host.ConfigEntry) error
}

// OAuth2Provider is implemented by integrations that authenticate with
// OAuth2. The host combines the endpoint with the application credentials
// from the integration's YAML block.
type OAuth2Provider interface {
	OAuth2Endpoint() oauth2.Endpoint
	OAuth2Scopes() []string
}

// Factory creates a new integration instance given a context.
type Factory func(ctx *Context) (Integration, error)
