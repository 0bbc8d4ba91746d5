// Package lupusec integrates Lupusec XT1/XT2 alarm panels over their local
// HTTP interface. Legacy YAML configuration is imported into a config entry
// on startup.
package lupusec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"homelink/internal/integrations/lupusec/lupu"
	"homelink/internal/schema"
	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Domain is the integration domain.
const Domain = "lupusec"

// Config entry data keys.
const (
	ConfUsername = "username"
	ConfPassword = "password"
	ConfHost     = "host"
	ConfName     = "name"
)

// Platforms the entry is forwarded to.
var Platforms = []host.Platform{
	host.PlatformAlarmControlPanel,
	host.PlatformBinarySensor,
	host.PlatformSwitch,
}

// yamlConfig is the legacy lupusec block.
type yamlConfig struct {
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password" validate:"required"`
	IPAddress string `yaml:"ip_address" validate:"required"`
	Name      string `yaml:"name"`
}

// System is a connected panel.
type System struct {
	Client *lupu.Client
	Name   string
}

// Connector opens a panel connection.
type Connector func(ctx context.Context, username, password, ip string) (*lupu.Client, error)

// Integration implements plugin.Integration for Lupusec.
type Integration struct {
	hass    host.Hass
	logger  *zap.Logger
	connect Connector

	mu      sync.RWMutex
	systems map[string]*System

	imports sync.WaitGroup
}

var (
	_ plugin.Integration       = (*Integration)(nil)
	_ plugin.ImportFlowHandler = (*Integration)(nil)
	_ plugin.PlatformSetup     = (*Integration)(nil)
	_ plugin.ImportWaiter      = (*Integration)(nil)
)

// New creates the integration.
func New(hass host.Hass, logger *zap.Logger) *Integration {
	i := &Integration{
		hass:    hass,
		logger:  logger.Named(Domain),
		systems: make(map[string]*System),
	}
	i.connect = func(ctx context.Context, username, password, ip string) (*lupu.Client, error) {
		return lupu.New(ctx, username, password, ip, lupu.WithLogger(i.logger))
	}
	return i
}

func (i *Integration) Domain() string { return Domain }

// Setup imports the legacy YAML block, if any, into a config entry. The
// import runs in the background; Setup itself only fails on a malformed
// block.
func (i *Integration) Setup(ctx context.Context, cfg host.Config) error {
	if cfg == nil {
		return nil
	}
	var conf yamlConfig
	found, err := cfg.Section(Domain, &conf)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := schema.Check(&conf); err != nil {
		return fmt.Errorf("invalid %s config: %w", Domain, err)
	}

	data := map[string]any{
		ConfUsername: conf.Username,
		ConfPassword: conf.Password,
		ConfHost:     conf.IPAddress,
		ConfName:     conf.Name,
	}

	i.imports.Add(1)
	go func() {
		defer i.imports.Done()
		_, err := i.hass.ConfigEntries().FlowInit(context.WithoutCancel(ctx), Domain, host.SourceImport, data)
		switch {
		case errors.Is(err, host.ErrAlreadyConfigured):
			i.logger.Debug("Panel already imported", zap.String("host", conf.IPAddress))
		case err != nil:
			i.logger.Warn("Importing YAML configuration failed",
				zap.String("host", conf.IPAddress),
				zap.Error(err))
		}
	}()
	return nil
}

// WaitImports blocks until background imports started by Setup finish.
func (i *Integration) WaitImports() {
	i.imports.Wait()
}

// ImportFlow turns imported YAML data into a config entry keyed by host.
func (i *Integration) ImportFlow(_ context.Context, data map[string]any) (*host.FlowResult, error) {
	ip, _ := data[ConfHost].(string)
	if ip == "" {
		return nil, fmt.Errorf("%s import needs a host", Domain)
	}
	title, _ := data[ConfName].(string)
	if title == "" {
		title = ip
	}
	return &host.FlowResult{Title: title, UniqueID: ip, Data: data}, nil
}

// SetupEntry connects to the panel and forwards the entry to the
// platforms. Connection failures are logged and reported as
// plugin.ErrSetupFailed.
func (i *Integration) SetupEntry(ctx context.Context, entry *host.ConfigEntry) error {
	ip := entry.String(ConfHost)

	var client *lupu.Client
	err := i.hass.AddExecutorJob(ctx, func() error {
		var err error
		client, err = i.connect(ctx, entry.String(ConfUsername), entry.String(ConfPassword), ip)
		return err
	})
	if errors.Is(err, lupu.ErrConnection) {
		i.logger.Error("Failed to connect to Lupusec device at "+ip, zap.Error(err))
		return fmt.Errorf("%w: %w", plugin.ErrSetupFailed, err)
	}
	if err != nil {
		i.logger.Error(fmt.Sprintf("Unknown error while trying to connect to Lupusec device at %s: %s", ip, err))
		return fmt.Errorf("%w: %w", plugin.ErrSetupFailed, err)
	}

	i.mu.Lock()
	i.systems[entry.EntryID] = &System{Client: client, Name: entry.String(ConfName)}
	i.mu.Unlock()

	if err := i.hass.ConfigEntries().ForwardEntrySetups(ctx, entry, Platforms); err != nil {
		i.logger.Error("Failed to set up Lupusec platforms", zap.String("host", ip), zap.Error(err))
		// Tear down the platforms that did load.
		if _, unloadErr := i.hass.ConfigEntries().UnloadPlatforms(context.WithoutCancel(ctx), entry, Platforms); unloadErr != nil {
			err = multierr.Append(err, unloadErr)
		}
		i.drop(entry.EntryID)
		return fmt.Errorf("%w: %w", plugin.ErrSetupFailed, err)
	}
	return nil
}

// UnloadEntry unloads the platforms and drops the panel connection.
func (i *Integration) UnloadEntry(ctx context.Context, entry *host.ConfigEntry) (bool, error) {
	ok, err := i.hass.ConfigEntries().UnloadPlatforms(ctx, entry, Platforms)
	if err != nil {
		return false, err
	}
	if ok {
		i.drop(entry.EntryID)
	}
	return ok, nil
}

func (i *Integration) drop(entryID string) {
	i.mu.Lock()
	delete(i.systems, entryID)
	i.mu.Unlock()
}

// System returns the connected panel of an entry.
func (i *Integration) System(entryID string) (*System, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.systems[entryID]
	return s, ok
}
