package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/highlighter/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedAvailability wraps a Dispatcher's probe with a TTL so status
// endpoints do not hit the workers on every request.
type CachedAvailability struct {
	dispatcher Dispatcher
	endpoints  []string
	ttl        time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	cached *Availability
}

// NewCachedAvailability creates a caching wrapper around availability probes.
func NewCachedAvailability(d Dispatcher, endpoints []string, logger *slog.Logger) *CachedAvailability {
	return &CachedAvailability{
		dispatcher: d,
		endpoints:  endpoints,
		ttl:        defaultCacheTTL,
		logger:     logging.OrDiscard(logger),
	}
}

// Get returns cached availability if fresh, otherwise re-probes.
func (c *CachedAvailability) Get(ctx context.Context) (*Availability, error) {
	c.mu.RLock()
	if c.cached != nil && time.Since(c.cached.ProbedAt) < c.ttl {
		avail := c.cached
		c.mu.RUnlock()
		return avail, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Peek returns the cached value without probing.
func (c *CachedAvailability) Peek() *Availability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (c *CachedAvailability) Refresh(ctx context.Context) (*Availability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	avail, err := c.dispatcher.Probe(ctx, c.endpoints)
	if err != nil {
		c.logger.Warn("worker probe failed", "error", err)
		// Return stale cache if available
		if c.cached != nil {
			c.logger.Info("returning stale availability cache")
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = avail
	return avail, nil
}

// Invalidate clears the cached availability.
func (c *CachedAvailability) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
