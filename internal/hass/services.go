package hass

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"homelink/pkg/host"

	"go.uber.org/zap"
)

type service struct {
	schema  host.Schema
	handler host.ServiceHandler
}

// Services dispatches service calls. Payloads are validated against the
// service schema before the handler sees them.
type Services struct {
	h      *Hass
	logger *zap.Logger

	mu       sync.RWMutex
	services map[string]map[string]service
}

var _ host.Services = (*Services)(nil)

func newServices(h *Hass) *Services {
	return &Services{
		h:        h,
		logger:   h.logger.Named("services"),
		services: make(map[string]map[string]service),
	}
}

// Register adds or replaces a service. A nil schema passes the raw map to
// the handler.
func (s *Services) Register(domain, name string, schema host.Schema, handler host.ServiceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.services[domain] == nil {
		s.services[domain] = make(map[string]service)
	}
	s.services[domain][name] = service{schema: schema, handler: handler}
	s.logger.Debug("Registered service", zap.String("service", domain+"."+name))
}

func (s *Services) Has(domain, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.services[domain][name]
	return ok
}

// Call validates data and runs the handler.
func (s *Services) Call(ctx context.Context, domain, name string, data map[string]any) error {
	s.mu.RLock()
	svc, ok := s.services[domain][name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s.%s: %w", domain, name, host.ErrServiceNotFound)
	}

	if data == nil {
		data = map[string]any{}
	}

	var payload any = data
	if svc.schema != nil {
		validated, err := svc.schema.Validate(data)
		if err != nil {
			return fmt.Errorf("%w for %s.%s: %v", host.ErrInvalidServiceData, domain, name, err)
		}
		payload = validated
	}

	s.h.Fire(host.Event{
		Type: host.EventCallService,
		Data: map[string]any{
			"domain":       domain,
			"service":      name,
			"service_data": data,
		},
	})

	return svc.handler(ctx, host.ServiceCall{Domain: domain, Service: name, Data: payload})
}

// Services lists registered services ordered by domain, then name.
func (s *Services) Services() []host.ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []host.ServiceInfo
	for domain, byName := range s.services {
		for name := range byName {
			result = append(result, host.ServiceInfo{Domain: domain, Service: name})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Domain != result[j].Domain {
			return result[i].Domain < result[j].Domain
		}
		return result[i].Service < result[j].Service
	})
	return result
}
