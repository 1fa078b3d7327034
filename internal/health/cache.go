// SPDX-License-Identifier: MIT

// Package health keeps the latest vehicle health snapshot.
package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	applog "whisperer/internal/log"
	"whisperer/internal/protocol"
)

// ErrRefreshFailed is returned when the snapshot could not be fetched. The
// previous snapshot stays in place.
var ErrRefreshFailed = errors.New("health: refresh failed")

// Fetcher retrieves a fresh snapshot from the service.
type Fetcher interface {
	HealthOverview(ctx context.Context) (*protocol.HealthSnapshot, error)
}

// Cache holds the current snapshot. Snapshots are replaced wholesale and
// must be treated as read-only by callers.
type Cache struct {
	fetcher Fetcher
	current atomic.Pointer[protocol.HealthSnapshot]

	mu        sync.Mutex
	listeners []func(*protocol.HealthSnapshot)
	refreshes int
}

// NewCache creates an empty cache.
func NewCache(f Fetcher) *Cache {
	return &Cache{fetcher: f}
}

// Snapshot returns the current snapshot, nil before the first successful
// refresh.
func (c *Cache) Snapshot() *protocol.HealthSnapshot {
	return c.current.Load()
}

// OnChange registers fn to be called after each successful replacement.
func (c *Cache) OnChange(fn func(*protocol.HealthSnapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Refresh fetches a new snapshot and swaps it in.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshes++
	c.mu.Unlock()

	snap, err := c.fetcher.HealthOverview(ctx)
	if err != nil {
		applog.Warnf("health: keeping previous snapshot: %v", err)
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	c.current.Store(snap)
	applog.Debugf("health: overall %d, %d alerts", snap.HealthScores.OverallScore, len(snap.Alerts))

	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Refreshes counts refresh attempts.
func (c *Cache) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}
