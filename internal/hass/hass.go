// Package hass is the in-process host the integrations run against. It
// implements the contracts in pkg/host: config entries and the device and
// entity registries persisted through internal/store, service dispatch, the
// blocking-call executor, OAuth2 credentials and an event bus.
package hass

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homelink/internal/clock"
	"homelink/internal/executor"
	"homelink/internal/store"
	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often loaded entries and entities are polled.
const DefaultPollInterval = 30 * time.Second

// Options configures a Hass.
type Options struct {
	Config       host.Config
	Store        store.Store
	Logger       *zap.Logger
	Clock        clock.Clock
	Workers      int
	PollInterval time.Duration
}

// Hass implements host.Hass.
type Hass struct {
	config       host.Config
	store        store.Store
	logger       *zap.Logger
	clock        clock.Clock
	pool         *executor.Pool
	pollInterval time.Duration

	entries  *Entries
	devices  *Devices
	entities *Entities
	services *Services
	bus      *Bus

	mu           sync.RWMutex
	integrations map[string]plugin.Integration
	order        []string
}

var _ host.Hass = (*Hass)(nil)

// New creates a host and loads persisted entries and entities.
func New(opts Options) (*Hass, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	h := &Hass{
		config:       opts.Config,
		store:        opts.Store,
		logger:       opts.Logger,
		clock:        opts.Clock,
		pool:         executor.New(opts.Workers, opts.Logger),
		pollInterval: opts.PollInterval,
		bus:          newBus(),
		integrations: make(map[string]plugin.Integration),
	}
	h.entries = newEntries(h)
	h.devices = newDevices(h)
	h.entities = newEntities(h)
	h.services = newServices(h)

	if err := h.entries.load(); err != nil {
		return nil, fmt.Errorf("failed to load config entries: %w", err)
	}
	if err := h.devices.load(); err != nil {
		return nil, fmt.Errorf("failed to load device registry: %w", err)
	}
	if err := h.entities.load(); err != nil {
		return nil, fmt.Errorf("failed to load entity registry: %w", err)
	}

	return h, nil
}

// AddIntegration makes an integration available to the host. Integrations
// are set up in the order they are added.
func (h *Hass) AddIntegration(integration plugin.Integration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	domain := integration.Domain()
	if _, exists := h.integrations[domain]; !exists {
		h.order = append(h.order, domain)
	}
	h.integrations[domain] = integration
}

func (h *Hass) integration(domain string) (plugin.Integration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i, ok := h.integrations[domain]
	return i, ok
}

// Domains returns the domains of the added integrations in setup order.
func (h *Hass) Domains() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]string, len(h.order))
	copy(result, h.order)
	return result
}

// Start runs every integration's Setup and then sets up all stored entries.
// Entry setup failures only change the entry state; Setup failures are
// returned together.
func (h *Hass) Start(ctx context.Context) error {
	var errs error

	// Entries imported during Setup are set up by their flow.
	stored := h.entries.Entries("")

	for _, domain := range h.Domains() {
		integration, _ := h.integration(domain)
		h.logger.Info("Setting up integration", zap.String("domain", domain))
		if err := integration.Setup(ctx, h.config); err != nil {
			h.logger.Error("Failed to set up integration",
				zap.String("domain", domain),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("setup %s: %w", domain, err))
			continue
		}
	}

	for _, entry := range stored {
		if _, ok := h.integration(entry.Domain); !ok {
			h.logger.Warn("No integration for config entry",
				zap.String("entry_id", entry.EntryID),
				zap.String("domain", entry.Domain))
			continue
		}
		if err := h.entries.Setup(ctx, entry.EntryID); err != nil {
			h.logger.Error("Failed to set up config entry",
				zap.String("entry_id", entry.EntryID),
				zap.String("domain", entry.Domain),
				zap.Error(err))
		}
	}

	return errs
}

// Run polls loaded entries and entities until ctx is done.
func (h *Hass) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Poll(ctx)
		}
	}
}

// Poll refreshes every loaded entry whose integration is a plugin.Poller,
// then every live entity of a loaded entry that is a host.Updater. Failures
// are logged.
func (h *Hass) Poll(ctx context.Context) {
	for _, entry := range h.entries.Entries("") {
		if h.entries.State(entry.EntryID) != host.StateLoaded {
			continue
		}
		integration, ok := h.integration(entry.Domain)
		if !ok {
			continue
		}
		poller, ok := integration.(plugin.Poller)
		if !ok {
			continue
		}
		if err := poller.Poll(ctx, entry); err != nil {
			h.logger.Warn("Polling config entry failed",
				zap.String("entry_id", entry.EntryID),
				zap.Error(err))
		}
	}

	for entityID, live := range h.entities.liveEntities() {
		if h.entries.State(live.entryID) != host.StateLoaded {
			continue
		}
		updater, ok := live.entity.(host.Updater)
		if !ok {
			continue
		}
		if err := updater.Update(ctx); err != nil {
			h.logger.Warn("Updating entity failed",
				zap.String("entity_id", entityID),
				zap.Error(err))
		}
	}
}

// Stop waits for background imports, unloads every loaded entry and closes
// the executor.
func (h *Hass) Stop(ctx context.Context) error {
	var errs error
	if err := h.waitImports(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, entry := range h.entries.Entries("") {
		if h.entries.State(entry.EntryID) != host.StateLoaded {
			continue
		}
		if err := h.entries.Unload(ctx, entry.EntryID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	h.pool.Close()
	return errs
}

// waitImports blocks until every plugin.ImportWaiter is done or ctx ends.
func (h *Hass) waitImports(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, domain := range h.Domains() {
			integration, _ := h.integration(domain)
			if waiter, ok := integration.(plugin.ImportWaiter); ok {
				waiter.WaitImports()
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for imports: %w", ctx.Err())
	}
}

// Entries returns the concrete config entry manager.
func (h *Hass) Entries() *Entries { return h.entries }

func (h *Hass) ConfigEntries() host.ConfigEntries   { return h.entries }
func (h *Hass) DeviceRegistry() host.DeviceRegistry { return h.devices }
func (h *Hass) EntityRegistry() host.EntityRegistry { return h.entities }
func (h *Hass) Services() host.Services             { return h.services }

// AddExecutorJob runs fn on the worker pool and waits for it.
func (h *Hass) AddExecutorJob(ctx context.Context, fn func() error) error {
	return h.pool.Run(ctx, fn)
}

// Fire publishes an event on the bus, stamping its time if unset.
func (h *Hass) Fire(event host.Event) {
	if event.TimeFired.IsZero() {
		event.TimeFired = h.clock.Now()
	}
	h.bus.publish(event)
}

// Subscribe registers fn for every event. fn runs on the firing goroutine
// and must not block.
func (h *Hass) Subscribe(fn func(host.Event)) func() {
	return h.bus.subscribe(fn)
}
