package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

const sessionClientTTL = 30 * time.Minute

// RuntimeFactory creates a fresh AgentSessionRuntime for a given token
// preference (identity token, falling back to the process-wide token).
type RuntimeFactory func(ctx context.Context, token string) (domain.AgentSessionRuntime, error)

type cacheEntry struct {
	client     domain.AgentSessionRuntime
	lastUsedAt time.Time
}

// SessionClientCache is an identity-keyed cache of LLM-runtime client
// handles with time-based eviction: entries older than 30 minutes are
// evicted by a periodic sweep, which asks the handle to shut down and
// ignores any error doing so.
type SessionClientCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	factory RuntimeFactory

	stop chan struct{}
	done chan struct{}
}

// NewSessionClientCache builds a cache that mints clients via factory and
// starts its own periodic eviction sweep.
func NewSessionClientCache(factory RuntimeFactory) *SessionClientCache {
	c := &SessionClientCache{
		entries: make(map[string]*cacheEntry),
		factory: factory,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached client for identity, creating one with token if
// none is cached. Get does not check an entry's age; expired entries are
// removed only by the periodic eviction sweep.
func (c *SessionClientCache) Get(ctx context.Context, identity, token string) (domain.AgentSessionRuntime, error) {
	c.mu.Lock()
	if e, ok := c.entries[identity]; ok {
		e.lastUsedAt = time.Now()
		c.mu.Unlock()
		return e.client, nil
	}
	c.mu.Unlock()

	client, err := c.factory(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[identity]; ok {
		// lost the race to another admission for the same identity; keep the
		// winner and shut down the client we just built.
		go func() { _ = client.Close() }()
		e.lastUsedAt = time.Now()
		return e.client, nil
	}
	c.entries[identity] = &cacheEntry{client: client, lastUsedAt: time.Now()}
	return client, nil
}

func (c *SessionClientCache) evictLoop() {
	defer close(c.done)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *SessionClientCache) evictExpired() {
	cutoff := time.Now().Add(-sessionClientTTL)
	c.mu.Lock()
	expired := make([]*cacheEntry, 0)
	for id, e := range c.entries {
		if e.lastUsedAt.Before(cutoff) {
			expired = append(expired, e)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()
	for _, e := range expired {
		if err := e.client.Close(); err != nil {
			slog.Warn("session client close failed during eviction", slog.Any("error", err))
		}
	}
}

// Shutdown stops the eviction sweep and asks every cached client to shut
// down, ignoring errors, as the spec requires for cache teardown.
func (c *SessionClientCache) Shutdown() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done

	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	for _, e := range entries {
		_ = e.client.Close()
	}
}
