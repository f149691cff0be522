package emission

import (
	"math"
	"time"
)

// Schedule selects which block-time regime a reward is computed under.
type Schedule int

const (
	// CurrentSchedule applies the block-time change at the activation height.
	CurrentSchedule Schedule = iota

	// LegacySchedule ignores the block-time change, yielding the reward the
	// chain would pay had the original block time been kept.
	LegacySchedule
)

func (s Schedule) String() string {
	switch s {
	case CurrentSchedule:
		return "current"
	case LegacySchedule:
		return "legacy"
	}
	return "unknown"
}

// ParseSchedule maps "current" and "legacy" to their Schedule. The empty
// string selects CurrentSchedule.
func ParseSchedule(s string) (Schedule, bool) {
	switch s {
	case "", "current":
		return CurrentSchedule, true
	case "legacy":
		return LegacySchedule, true
	}
	return CurrentSchedule, false
}

// emissionSpeedFactor is the right shift applied to the remaining supply.
const emissionSpeedFactor = 20

// Model computes rewards and cumulative supply for a decaying emission curve.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	params Params
	scale  float64
}

// NewModel returns a model for the provided parameters.
func NewModel(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{params: p, scale: math.Pow(2, -emissionSpeedFactor)}, nil
}

// Params returns the parameters the model was built with.
func (m *Model) Params() Params { return m.params }

// Reward returns the base reward of the block at height given the supply
// emitted before it.
//
// The reward is (MaxSupply - supply) * 2^-20, doubled past the activation
// height under CurrentSchedule, and never less than the tail emission. A
// supply above MaxSupply is not rejected; it simply yields the tail emission.
func (m *Model) Reward(height uint64, supply float64, sched Schedule) float64 {
	reward := (m.params.MaxSupply - supply) * m.scale
	if height > m.params.ActivationHeight && sched == CurrentSchedule {
		reward *= 2
	}
	if reward > m.params.TailEmission {
		return reward
	}
	return m.params.TailEmission
}

// IsTail reports whether reward is pinned at the tail emission.
func (m *Model) IsTail(reward float64) bool {
	return reward == m.params.TailEmission
}

// ExpectedDate returns the estimated time the block at height is mined.
func (m *Model) ExpectedDate(height uint64) time.Time {
	return m.params.Timeline().ExpectedDate(height)
}

// BitcoinModel computes rewards and cumulative supply for a halving curve.
type BitcoinModel struct {
	params BitcoinParams
}

// NewBitcoinModel returns a halving model for the provided parameters.
func NewBitcoinModel(p BitcoinParams) (*BitcoinModel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &BitcoinModel{params: p}, nil
}

// Params returns the parameters the model was built with.
func (m *BitcoinModel) Params() BitcoinParams { return m.params }

// Reward returns the initial reward halved once per completed halving
// interval below height. There is no floor.
func (m *BitcoinModel) Reward(height uint64) float64 {
	reward := m.params.InitialReward
	for i := uint64(0); i < height/m.params.HalvingInterval; i++ {
		reward /= 2
		if reward == 0 {
			break
		}
	}
	return reward
}

// ExpectedDate returns the estimated time the block at height is mined.
func (m *BitcoinModel) ExpectedDate(height uint64) time.Time {
	return m.params.Timeline().ExpectedDate(height)
}
