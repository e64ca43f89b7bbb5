// Package readmodel keeps query-side views of the ledger that stay consistent
// with the store through its change subscription.
package readmodel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

const defaultCacheSize = 512

// CacheStats reports lookups served from the cache and from the store.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// reloader is implemented by stores whose whole working set can be replaced
// by another session's commit. Such reloads carry no change set.
type reloader interface {
	OnReload(fn func()) (unsubscribe func())
}

// refresher is implemented by stores that can pick up commits made by other
// sessions of the same database.
type refresher interface {
	Refresh(ctx context.Context) error
}

// SupplyCache is a read-through LRU of supplies plus a materialised list.
// Committed supply changes evict the touched ids and drop the list; a store
// reload drops everything. A fill that raced with an invalidation is
// discarded.
type SupplyCache struct {
	store domain.PersistentStore
	byID  *lru.Cache[string, domain.Supply]
	stops []func()

	mu   sync.RWMutex
	list []domain.Supply
	gen  uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewSupplyCache subscribes to store. size <= 0 selects a default capacity.
func NewSupplyCache(store domain.PersistentStore, size int) (*SupplyCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	byID, err := lru.New[string, domain.Supply](size)
	if err != nil {
		return nil, fmt.Errorf("supply cache: %w", err)
	}
	c := &SupplyCache{store: store, byID: byID}
	c.stops = append(c.stops, store.Subscribe(c.invalidate))
	if r, ok := store.(reloader); ok {
		c.stops = append(c.stops, r.OnReload(c.Purge))
	}
	return c, nil
}

func (c *SupplyCache) invalidate(changes []domain.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	touched := false
	for _, change := range changes {
		if change.Entity != domain.EntitySupply {
			continue
		}
		c.byID.Remove(change.EntityID())
		touched = true
	}
	if touched {
		c.gen++
		c.list = nil
	}
}

// Purge drops every cached supply.
func (c *SupplyCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.byID.Purge()
	c.list = nil
}

// Sync asks the store to load commits made by other sessions; a reload purges
// the cache. Stores without shared state make it a no-op.
func (c *SupplyCache) Sync(ctx context.Context) error {
	r, ok := c.store.(refresher)
	if !ok {
		return nil
	}
	return r.Refresh(ctx)
}

func (c *SupplyCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Get returns the supply with id.
func (c *SupplyCache) Get(id string) (domain.Supply, bool) {
	if sup, ok := c.byID.Get(id); ok {
		c.hits.Add(1)
		return sup, true
	}
	c.misses.Add(1)
	gen := c.generation()
	sup, ok := c.store.GetSupply(id)
	if ok {
		c.mu.Lock()
		if c.gen == gen {
			c.byID.Add(id, sup)
		}
		c.mu.Unlock()
	}
	return sup, ok
}

// List returns all supplies in store order.
func (c *SupplyCache) List() []domain.Supply {
	c.mu.RLock()
	list := c.list
	c.mu.RUnlock()
	if list != nil {
		c.hits.Add(1)
		return append([]domain.Supply(nil), list...)
	}
	c.misses.Add(1)
	gen := c.generation()
	list = c.store.ListSupplies()
	if list == nil {
		list = []domain.Supply{}
	}
	c.mu.Lock()
	if c.gen == gen {
		c.list = list
	}
	c.mu.Unlock()
	return append([]domain.Supply(nil), list...)
}

// LowStock lists supplies whose available quantity is at or below threshold,
// lowest first.
func (c *SupplyCache) LowStock(threshold decimal.Decimal) []domain.Supply {
	var out []domain.Supply
	for _, sup := range c.List() {
		if sup.Available().LessThanOrEqual(threshold) {
			out = append(out, sup)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Available().LessThan(out[j].Available())
	})
	return out
}

// Search matches name substrings case-insensitively, optionally within category.
func (c *SupplyCache) Search(query string, category domain.SupplyCategory) []domain.Supply {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []domain.Supply
	for _, sup := range c.List() {
		if category != "" && sup.Category != category {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(sup.Name), query) {
			out = append(out, sup)
		}
	}
	return out
}

// Stats returns hit and miss counters.
func (c *SupplyCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close stops listening for store changes.
func (c *SupplyCache) Close() {
	for _, stop := range c.stops {
		stop()
	}
}
