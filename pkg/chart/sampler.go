// Package chart samples emission curves into point series for plotting.
package chart

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/metrics"
)

const (
	// TailColor marks points paying the tail emission.
	TailColor = "red"

	dateLayout = "Mon Jan 02 2006"
)

// Point is one sample of a curve.
type Point struct {
	Height uint64
	Time   time.Time
	Value  float64
	Label  string
	Color  string
	Tail   bool
}

// Series is an ordered list of points, ascending by height and time.
type Series struct {
	Name   string
	Points []Point
}

// TailStart returns the first sampled height in the tail emission regime.
func (s Series) TailStart() (uint64, bool) {
	for _, p := range s.Points {
		if p.Tail {
			return p.Height, true
		}
	}
	return 0, false
}

// Sampler walks height ranges of the primary and comparison curves.
type Sampler struct {
	model   *emission.Model
	bitcoin *emission.BitcoinModel
	logger  *zap.Logger
}

type Opt func(*Sampler)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Sampler) {
		s.logger = logger
	}
}

func New(model *emission.Model, bitcoin *emission.BitcoinModel, opts ...Opt) *Sampler {
	s := &Sampler{model: model, bitcoin: bitcoin, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the primary emission model.
func (s *Sampler) Model() *emission.Model { return s.model }

// Bitcoin returns the comparison model.
func (s *Sampler) Bitcoin() *emission.BitcoinModel { return s.bitcoin }

// Sample evaluates the primary curve at heights 0, step, 2*step, ... below
// maxHeight. The supply series holds the circulating supply after each sampled
// block; the reward series holds that block's legacy-schedule reward, priced
// against the supply emitted before it, so the curve stays comparable
// across the block-time change. Once the current-schedule reward reaches the
// tail emission, that point and all later ones are labelled and coloured as
// tail emission.
func (s *Sampler) Sample(maxHeight, step uint64) (supply, reward Series, err error) {
	if step == 0 {
		return Series{}, Series{}, emission.Error{Err: emission.ErrInvalidStep, Description: "sampling step must be positive"}
	}
	start := time.Now()
	params := s.model.Params()
	n := sampleCount(0, maxHeight, step)
	supply = Series{Name: params.Ticker + " supply", Points: make([]Point, 0, n)}
	reward = Series{Name: params.Ticker + " block reward", Points: make([]Point, 0, n)}

	var (
		cp   emission.Checkpoint
		tail bool
	)
	err = forEachHeight(0, maxHeight, step, func(h uint64) error {
		before, after, err := s.advance(cp, h)
		if err != nil {
			return err
		}
		cp = after
		current := s.model.Reward(h, before.Supply, emission.CurrentSchedule)
		legacy := s.model.Reward(h, before.Supply, emission.LegacySchedule)
		if s.model.IsTail(current) {
			tail = true
		}
		date := s.model.ExpectedDate(h)
		p := Point{Height: h, Time: date, Label: heightLabel(h, date), Tail: tail}
		if tail {
			p.Label = fmt.Sprintf("Tail emission (%v %s per block) %s", params.TailEmission, params.Ticker, p.Label)
			p.Color = TailColor
		}
		p.Value = cp.Supply
		supply.Points = append(supply.Points, p)
		p.Value = legacy
		reward.Points = append(reward.Points, p)
		return nil
	})
	if err != nil {
		return Series{}, Series{}, err
	}
	metrics.ReportSample(params.Ticker, time.Since(start))
	s.logger.Debug("sampled emission curve",
		zap.String("ticker", params.Ticker),
		zap.Uint64("max_height", maxHeight),
		zap.Uint64("step", step),
		zap.Int("points", len(supply.Points)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return supply, reward, nil
}

// SampleComparison evaluates the halving curve at heights startHeight,
// startHeight+step, ... below maxHeight. Rewards are multiplied by the
// model's RewardScale.
func (s *Sampler) SampleComparison(startHeight, maxHeight, step uint64) (supply, reward Series, err error) {
	if step == 0 {
		return Series{}, Series{}, emission.Error{Err: emission.ErrInvalidStep, Description: "sampling step must be positive"}
	}
	start := time.Now()
	params := s.bitcoin.Params()
	n := sampleCount(startHeight, maxHeight, step)
	supply = Series{Name: params.Ticker + " supply", Points: make([]Point, 0, n)}
	reward = Series{Name: params.Ticker + " block reward", Points: make([]Point, 0, n)}

	var cp emission.Checkpoint
	err = forEachHeight(startHeight, maxHeight, step, func(h uint64) error {
		next, err := s.bitcoin.SupplyAt(h, cp)
		if err != nil {
			return err
		}
		cp = next
		date := s.bitcoin.ExpectedDate(h)
		p := Point{Height: h, Time: date, Label: heightLabel(h, date), Value: cp.Supply}
		supply.Points = append(supply.Points, p)
		p.Value = s.bitcoin.Reward(h) * params.RewardScale
		reward.Points = append(reward.Points, p)
		return nil
	})
	if err != nil {
		return Series{}, Series{}, err
	}
	metrics.ReportSample(params.Ticker, time.Since(start))
	s.logger.Debug("sampled comparison curve",
		zap.String("ticker", params.Ticker),
		zap.Uint64("start_height", startHeight),
		zap.Uint64("max_height", maxHeight),
		zap.Uint64("step", step),
		zap.Int("points", len(supply.Points)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return supply, reward, nil
}

// advance moves cp to height-1 and then to height, returning both checkpoints.
// The first carries the supply a block at height is priced against.
func (s *Sampler) advance(cp emission.Checkpoint, height uint64) (before, after emission.Checkpoint, err error) {
	before = cp
	if height > before.Height {
		if before, err = s.model.SupplyAt(height-1, cp); err != nil {
			return emission.Checkpoint{}, emission.Checkpoint{}, err
		}
	}
	if after, err = s.model.SupplyAt(height, before); err != nil {
		return emission.Checkpoint{}, emission.Checkpoint{}, err
	}
	return before, after, nil
}

func heightLabel(h uint64, date time.Time) string {
	return fmt.Sprintf("Block height: %d Date: %s", h, date.Format(dateLayout))
}

// maxPrealloc bounds the capacity reserved up front for a series.
const maxPrealloc = 1 << 16

// forEachHeight calls fn for from, from+step, ... below to and stops at the
// first error.
func forEachHeight(from, to, step uint64, fn func(uint64) error) error {
	for h := from; h < to; h += step {
		if err := fn(h); err != nil {
			return err
		}
		if to-h <= step {
			break
		}
	}
	return nil
}

// PointCount returns how many heights from, from+step, ... lie below to.
func PointCount(from, to, step uint64) uint64 {
	if from >= to || step == 0 {
		return 0
	}
	return (to-from-1)/step + 1
}

func sampleCount(from, to, step uint64) int {
	return int(min(PointCount(from, to, step), maxPrealloc))
}
