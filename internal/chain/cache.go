package chain

import (
	"context"
	"sync"
	"time"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/types"
)

// Cache holds one whole-chain snapshot per index with a fixed TTL. A
// refresh replaces the snapshot atomically; a failed refresh keeps the
// previous snapshot in place, so callers prefer stale data over no data.
type Cache struct {
	src interfaces.ChainSource
	ttl time.Duration

	mu    sync.RWMutex
	snaps map[string]*types.ChainSnapshot
	now   func() time.Time
}

func NewCache(src interfaces.ChainSource, ttl time.Duration) *Cache {
	return &Cache{
		src:   src,
		ttl:   ttl,
		snaps: map[string]*types.ChainSnapshot{},
		now:   time.Now,
	}
}

// Get returns the chain row at a strike for an index, refreshing the
// snapshot if the TTL has lapsed. A nil row means the strike is absent
// from even the freshest chain available.
func (c *Cache) Get(ctx context.Context, indexID string, strike float64) *types.ChainRow {
	snap := c.snapshot(ctx, indexID)
	if snap == nil {
		return nil
	}
	for i := range snap.Rows {
		if snap.Rows[i].Strike == strike {
			row := snap.Rows[i]
			return &row
		}
	}
	return nil
}

// Summary returns the chain psychology for an index, or nil when no chain
// has ever been fetched successfully.
func (c *Cache) Summary(ctx context.Context, indexID string) *types.ChainSummary {
	return Summarize(c.snapshot(ctx, indexID))
}

// Snapshot exposes the current (possibly stale) chain for an index.
func (c *Cache) Snapshot(ctx context.Context, indexID string) *types.ChainSnapshot {
	return c.snapshot(ctx, indexID)
}

func (c *Cache) snapshot(ctx context.Context, indexID string) *types.ChainSnapshot {
	c.mu.RLock()
	snap := c.snaps[indexID]
	fresh := snap != nil && c.now().Sub(snap.FetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return snap
	}

	refreshed, err := c.src.Fetch(ctx, indexID)
	if err != nil {
		// Stale-but-available beats hard failure: chain context is
		// advisory, not decision-critical.
		logger.Warn(ctx, "Option chain refresh failed, serving stale data", "index", indexID, "error", err)
		return snap
	}

	c.mu.Lock()
	// Another request may have refreshed while we fetched; newest wins.
	if cur := c.snaps[indexID]; cur == nil || cur.FetchedAt.Before(refreshed.FetchedAt) {
		c.snaps[indexID] = &refreshed
	}
	snap = c.snaps[indexID]
	c.mu.Unlock()
	return snap
}
