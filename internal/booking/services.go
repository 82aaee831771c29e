package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// ServicesSource lists the bookable services.
type ServicesSource interface {
	ListServices(ctx context.Context) ([]backend.Service, error)
}

// ServiceCatalog caches the service list drafts are validated against.
type ServiceCatalog struct {
	source ServicesSource
	logger *logging.Logger

	mu      sync.RWMutex
	byID    map[backend.ID]backend.Service
	loaded  bool
	lastErr error
}

func NewServiceCatalog(source ServicesSource, logger *logging.Logger) *ServiceCatalog {
	if source == nil {
		panic("booking: services source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ServiceCatalog{source: source, logger: logger, byID: map[backend.ID]backend.Service{}}
}

// Load replaces the cached list. A failed load keeps the previous list.
func (c *ServiceCatalog) Load(ctx context.Context) error {
	list, err := c.source.ListServices(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("booking: load services failed, keeping previous list", "error", err)
		return fmt.Errorf("booking: load services: %w", err)
	}
	byID := make(map[backend.ID]backend.Service, len(list))
	for _, s := range list {
		byID[s.ID] = s
	}
	c.mu.Lock()
	c.byID = byID
	c.loaded = true
	c.lastErr = nil
	c.mu.Unlock()
	c.logger.Debug("booking: services loaded", "count", len(list))
	return nil
}

// Loaded reports whether a list has been fetched at least once.
func (c *ServiceCatalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup returns the cached service with id.
func (c *ServiceCatalog) Lookup(id backend.ID) (backend.Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[id]
	return s, ok
}

// Check rejects a service ID that is unknown or inactive. Before the first
// successful load every ID passes; the backend has the final say.
func (c *ServiceCatalog) Check(id backend.ID) error {
	if c == nil || strings.TrimSpace(string(id)) == "" || !c.Loaded() {
		return nil
	}
	s, ok := c.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: unknown service %s", ErrValidation, id)
	}
	if !s.Active() {
		return fmt.Errorf("%w: service %q is not available", ErrValidation, s.Name)
	}
	return nil
}

// Watch reloads when an admin edits the service list.
func (c *ServiceCatalog) Watch(bus *events.Bus) func() {
	return bus.Subscribe(events.ServicesUpdated, func(ctx context.Context, ev events.Event) {
		if err := c.Load(ctx); err != nil {
			c.logger.Warn("booking: reload services after change failed", "source", ev.Source, "error", err)
		}
	})
}

// LastError returns the error from the most recent failed load.
func (c *ServiceCatalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
