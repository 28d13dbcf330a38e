package inventory

import (
	"context"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
)

// refreshTimeout bounds one backend walk. Refreshes are detached from the
// caller's context because every caller sharing the flight waits on them.
const refreshTimeout = 30 * time.Second

// StatusSource builds a full status snapshot.
type StatusSource interface {
	Status(ctx context.Context) (map[string]InterfaceStatus, error)
}

// StatusCache holds the last status snapshot. Concurrent refreshes collapse
// into one backend walk.
type StatusCache struct {
	source   StatusSource
	maxAge   time.Duration
	timeout  time.Duration
	log      *logging.Logger
	metrics  *metrics.Registry
	flight   singleflight.Group
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.RWMutex
	snapshot map[string]InterfaceStatus
	taken    time.Time
	stale    bool
	gen      uint64 // bumped by Invalidate
}

// NewStatusCache creates a cache that treats snapshots older than maxAge as stale.
func NewStatusCache(source StatusSource, maxAge time.Duration, log *logging.Logger) *StatusCache {
	if log == nil {
		log = logging.WithComponent("status")
	}
	return &StatusCache{
		source:  source,
		maxAge:  maxAge,
		timeout: refreshTimeout,
		log:     log,
		metrics: metrics.Get(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		stale:   true,
	}
}

// Start refreshes the snapshot every maxAge until Close is called or ctx is done.
func (c *StatusCache) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.maxAge)
		defer ticker.Stop()

		c.refreshLogged(ctx)
		for {
			select {
			case <-ticker.C:
				c.refreshLogged(ctx)
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *StatusCache) refreshLogged(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		c.log.Warn("status refresh failed", "error", err)
	}
}

// Close stops the refresh loop and waits for it to exit.
func (c *StatusCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Invalidate marks the snapshot stale so the next Get rebuilds it. A rebuild
// already in flight still stores its result but leaves the cache stale.
func (c *StatusCache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.gen++
	c.mu.Unlock()
}

// Refresh rebuilds the snapshot. Callers that arrive while a rebuild is in
// flight share its result.
func (c *StatusCache) Refresh(ctx context.Context) (map[string]InterfaceStatus, error) {
	v, err, _ := c.flight.Do("status", func() (any, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		walkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := c.now()
		snap, err := c.source.Status(walkCtx)
		if err != nil {
			return nil, err
		}
		c.metrics.ObserveStatusRefresh(time.Since(start))

		c.mu.Lock()
		c.snapshot = snap
		c.taken = c.now()
		c.stale = c.gen != gen
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[string]InterfaceStatus)), nil
}

// Get returns the snapshot, rebuilding it first when it is stale.
func (c *StatusCache) Get(ctx context.Context) (map[string]InterfaceStatus, error) {
	c.mu.RLock()
	fresh := !c.stale && c.now().Sub(c.taken) < c.maxAge
	snap := c.snapshot
	c.mu.RUnlock()

	if fresh {
		return maps.Clone(snap), nil
	}
	return c.Refresh(ctx)
}

// Taken returns when the current snapshot was built.
func (c *StatusCache) Taken() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taken
}
