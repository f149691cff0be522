package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/metrics"
	"github.com/emission-labs/emission-curve/pkg/types"
)

// Fetcher retrieves the live total emission.
type Fetcher interface {
	TotalEmission(ctx context.Context) (*types.TotalEmission, error)
}

type Options struct {
	TTL    time.Duration
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// StatCache keeps the last successfully fetched live stat. A failed refresh
// keeps serving the previous value.
type StatCache struct {
	mu        sync.RWMutex
	stat      *types.TotalEmission
	fetchedAt time.Time
	lastErr   error

	ttl     time.Duration
	fetcher Fetcher
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewStatCache(f Fetcher, opt Options) *StatCache {
	if opt.TTL <= 0 {
		opt.TTL = 60 * time.Second
	}
	if opt.Clock == nil {
		opt.Clock = clockwork.NewRealClock()
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &StatCache{ttl: opt.TTL, fetcher: f, clock: opt.Clock, logger: opt.Logger}
}

// Get returns the cached stat and whether it is younger than the TTL.
func (c *StatCache) Get() (*types.TotalEmission, bool) {
	c.mu.RLock()
	s, at := c.stat, c.fetchedAt
	c.mu.RUnlock()
	if s == nil {
		return nil, false
	}
	return s, c.clock.Since(at) <= c.ttl
}

// LastError returns the error of the most recent refresh, if it failed.
func (c *StatCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Update fetches the stat and stores it on success.
func (c *StatCache) Update(ctx context.Context) (*types.TotalEmission, error) {
	s, err := c.fetcher.TotalEmission(ctx)
	if err != nil {
		metrics.ReportStatFetch("", 0, err)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}
	metrics.ReportStatFetch(s.Ticker, s.Amount, nil)
	c.mu.Lock()
	c.stat = s
	c.fetchedAt = c.clock.Now()
	c.lastErr = nil
	c.mu.Unlock()
	return s, nil
}

// RunRefresher refreshes the stat every TTL until ctx is done.
func (c *StatCache) RunRefresher(ctx context.Context) {
	for {
		if _, err := c.Update(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("live stat refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.ttl):
		}
	}
}
