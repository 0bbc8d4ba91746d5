// Package homeconnect integrates BSH Home Connect appliances through the
// vendor cloud API. It registers the appliance services, keeps an index of
// the appliances of every loaded account, and migrates entity unique IDs
// from the 1.1 entry format.
package homeconnect

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"homelink/internal/clock"
	"homelink/internal/integrations/homeconnect/api"
	"homelink/internal/schema"
	"homelink/internal/throttle"
	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// yamlConfig is the optional home_connect block. client_id and
// client_secret in the same block are read by the host.
type yamlConfig struct {
	APIURL string `yaml:"api_url" validate:"omitempty,url"`
}

type indexedAppliance struct {
	entryID   string
	appliance Appliance
}

// Integration implements plugin.Integration for Home Connect.
type Integration struct {
	hass     host.Hass
	logger   *zap.Logger
	clock    clock.Clock
	throttle *throttle.Throttle

	newSession SessionFactory

	mu         sync.RWMutex
	sessions   map[string]Session
	appliances map[string]indexedAppliance
}

var (
	_ plugin.Integration    = (*Integration)(nil)
	_ plugin.Versioned      = (*Integration)(nil)
	_ plugin.Migrator       = (*Integration)(nil)
	_ plugin.Poller         = (*Integration)(nil)
	_ plugin.OAuth2Provider = (*Integration)(nil)
)

// New creates the integration.
func New(hass host.Hass, logger *zap.Logger, c clock.Clock) *Integration {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Integration{
		hass:       hass,
		logger:     logger.Named(Domain),
		clock:      c,
		throttle:   throttle.New(ScanInterval, c),
		newSession: cloudSessionFactory(""),
		sessions:   make(map[string]Session),
		appliances: make(map[string]indexedAppliance),
	}
}

// SetSessionFactory replaces how sessions are built, e.g. with a fake.
func (i *Integration) SetSessionFactory(f SessionFactory) {
	i.newSession = f
}

func (i *Integration) Domain() string { return Domain }

// EntryVersion reports the current config entry version, 1.2.
func (i *Integration) EntryVersion() (int, int) {
	return EntryVersion, EntryMinorVersion
}

func (i *Integration) OAuth2Endpoint() oauth2.Endpoint {
	return api.Endpoint
}

func (i *Integration) OAuth2Scopes() []string {
	return []string{"IdentifyAppliance", "Monitor", "Settings", "Control"}
}

// Setup registers the appliance services. It always succeeds unless the
// YAML block is malformed.
func (i *Integration) Setup(ctx context.Context, cfg host.Config) error {
	if cfg != nil {
		var conf yamlConfig
		found, err := cfg.Section(Domain, &conf)
		if err != nil {
			return err
		}
		if found {
			if err := schema.Check(&conf); err != nil {
				return fmt.Errorf("invalid %s config: %w", Domain, err)
			}
			if conf.APIURL != "" {
				i.logger.Info("Using alternative API", zap.String("url", conf.APIURL))
				i.newSession = cloudSessionFactory(conf.APIURL)
			}
		}
	}

	i.registerServices()
	return nil
}

// SetupEntry authenticates the account, refreshes its appliances and
// forwards the entry to the platforms.
func (i *Integration) SetupEntry(ctx context.Context, entry *host.ConfigEntry) error {
	implementation, err := i.hass.OAuth2Implementation(ctx, entry)
	if err != nil {
		return fmt.Errorf("resolve oauth2 implementation: %w", err)
	}

	save := func(token *oauth2.Token) error {
		current, ok := i.hass.ConfigEntries().Get(entry.EntryID)
		if !ok {
			current = entry
		}
		data := maps.Clone(current.Data)
		if data == nil {
			data = make(map[string]any)
		}
		data["token"] = api.TokenData(token)
		i.logger.Debug("Persisting refreshed token", zap.String("entry_id", entry.EntryID))
		return i.hass.ConfigEntries().UpdateEntry(current, host.EntryUpdate{Data: data})
	}

	// Token refreshes outlive this call.
	session, err := i.newSession(context.WithoutCancel(ctx), implementation, entry, save)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.sessions[entry.EntryID] = session
	i.mu.Unlock()

	if err := i.UpdateAllDevices(ctx, entry); err != nil {
		i.forget(entry.EntryID)
		return err
	}

	if err := i.hass.ConfigEntries().ForwardEntrySetups(ctx, entry, Platforms); err != nil {
		i.hass.ConfigEntries().UnloadPlatforms(context.WithoutCancel(ctx), entry, Platforms)
		i.forget(entry.EntryID)
		return err
	}
	return nil
}

// UnloadEntry unloads the platforms and, if that worked, drops the session
// and its appliances.
func (i *Integration) UnloadEntry(ctx context.Context, entry *host.ConfigEntry) (bool, error) {
	ok, err := i.hass.ConfigEntries().UnloadPlatforms(ctx, entry, Platforms)
	if err != nil {
		return false, err
	}
	if ok {
		i.forget(entry.EntryID)
	}
	return ok, nil
}

// Poll refreshes the entry's appliances; the throttle keeps it to one
// vendor fetch per ScanInterval.
func (i *Integration) Poll(ctx context.Context, entry *host.ConfigEntry) error {
	return i.UpdateAllDevices(ctx, entry)
}

func (i *Integration) session(entryID string) (Session, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.sessions[entryID]
	return s, ok
}

func (i *Integration) forget(entryID string) {
	i.mu.Lock()
	delete(i.sessions, entryID)
	for haID, indexed := range i.appliances {
		if indexed.entryID == entryID {
			delete(i.appliances, haID)
		}
	}
	i.mu.Unlock()

	i.throttle.Forget(entryID)
}
