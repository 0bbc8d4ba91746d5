package plugin

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Priority constants for integration registration.
// Higher priority values override lower priority integrations for the same
// domain.
const (
	// PriorityDefault is the priority of the integrations shipped here.
	PriorityDefault = 0

	// PriorityOverride lets a private build replace a shipped integration.
	PriorityOverride = 100
)

// defaultOrder is used when an integration does not specify one.
const defaultOrder = 50

// IntegrationInfo contains metadata about a registered integration.
type IntegrationInfo struct {
	// Domain is the unique identifier of the integration.
	Domain string

	// Description is a human-readable description.
	Description string

	// Priority decides which registration wins for the same domain.
	Priority int

	// Factory creates new instances of the integration.
	Factory Factory

	// Order specifies setup order. Lower values are set up first.
	Order int
}

// Registry manages integration registration and instantiation.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]IntegrationInfo
	order        []string
}

// NewRegistry creates a new integration registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]IntegrationInfo),
		order:        make([]string, 0),
	}
}

// Register adds an integration to the registry.
// If the domain is already registered, the one with higher priority wins.
// If priorities are equal, the later registration wins.
func (r *Registry) Register(info IntegrationInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Domain == "" {
		return fmt.Errorf("integration domain cannot be empty")
	}

	if info.Factory == nil {
		return fmt.Errorf("integration %s: factory cannot be nil", info.Domain)
	}

	if info.Order == 0 {
		info.Order = defaultOrder
	}

	existing, exists := r.integrations[info.Domain]
	if exists {
		if info.Priority < existing.Priority {
			log.Printf("Integration %q registration skipped (priority %d < existing %d)",
				info.Domain, info.Priority, existing.Priority)
			return nil
		}
		log.Printf("Integration %q being overridden (priority %d -> %d)",
			info.Domain, existing.Priority, info.Priority)
	}

	r.integrations[info.Domain] = info

	if !exists {
		r.order = append(r.order, info.Domain)
	}

	return nil
}

// Get returns the info for a domain, or nil if not found.
func (r *Registry) Get(domain string) *IntegrationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.integrations[domain]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered integrations sorted by setup order, then
// domain.
func (r *Registry) List() []IntegrationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]IntegrationInfo, 0, len(r.integrations))
	for _, domain := range r.order {
		result = append(result, r.integrations[domain])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Domain < result[j].Domain
	})

	return result
}

// CreateAll instantiates all registered integrations in setup order.
func (r *Registry) CreateAll(ctx *Context) ([]Integration, error) {
	infos := r.List()
	result := make([]Integration, 0, len(infos))

	for _, info := range infos {
		integration, err := info.Factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create integration %s: %w", info.Domain, err)
		}
		result = append(result, integration)
	}

	return result, nil
}

// Domains returns the domains of all registered integrations in
// registration order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Clear removes all registered integrations. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.integrations = make(map[string]IntegrationInfo)
	r.order = make([]string, 0)
}

var globalRegistry = NewRegistry()

// Register adds an integration to the global registry.
// This is typically called from init() functions in integration packages.
func Register(info IntegrationInfo) error {
	return globalRegistry.Register(info)
}

// Get returns integration info from the global registry.
func Get(domain string) *IntegrationInfo {
	return globalRegistry.Get(domain)
}

// List returns all integrations from the global registry.
func List() []IntegrationInfo {
	return globalRegistry.List()
}

// CreateAll creates all integrations from the global registry.
func CreateAll(ctx *Context) ([]Integration, error) {
	return globalRegistry.CreateAll(ctx)
}

// Domains returns all domains from the global registry.
func Domains() []string {
	return globalRegistry.Domains()
}

// ClearGlobal clears the global registry. Useful for testing.
func ClearGlobal() {
	globalRegistry.Clear()
}
