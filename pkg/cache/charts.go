package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/emission-labs/emission-curve/pkg/metrics"
	"github.com/emission-labs/emission-curve/pkg/types"
)

// Curve names used in chart keys.
const (
	PrimaryCurve    = "primary"
	ComparisonCurve = "comparison"
)

// ChartKey identifies one sampled chart set.
type ChartKey struct {
	Curve     string
	Start     uint64
	MaxHeight uint64
	Step      uint64
}

func (k ChartKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Curve, k.Start, k.MaxHeight, k.Step)
}

// ChartCache memoizes sampled chart sets. Concurrent misses for the same key
// share one computation.
type ChartCache struct {
	sets  *lru.Cache[ChartKey, *types.ChartSet]
	group singleflight.Group
}

func NewChartCache(size int) (*ChartCache, error) {
	if size <= 0 {
		size = 64
	}
	sets, err := lru.New[ChartKey, *types.ChartSet](size)
	if err != nil {
		return nil, fmt.Errorf("create chart cache: %w", err)
	}
	return &ChartCache{sets: sets}, nil
}

// Get returns the set for key, computing and storing it on a miss.
func (c *ChartCache) Get(key ChartKey, compute func() (*types.ChartSet, error)) (*types.ChartSet, error) {
	if set, ok := c.sets.Get(key); ok {
		metrics.ReportChartLookup(true)
		return set, nil
	}
	metrics.ReportChartLookup(false)
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		set, err := compute()
		if err != nil {
			return nil, err
		}
		c.sets.Add(key, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.ChartSet), nil
}

// Len returns the number of cached sets.
func (c *ChartCache) Len() int { return c.sets.Len() }
