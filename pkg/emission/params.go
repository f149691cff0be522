package emission

import (
	"fmt"
	"math"
	"time"
)

// Params holds the constants of a decaying emission curve with a tail floor
// and a single block-time change. Amounts are in display units (atomic units
// scaled by 10^-AtomicUnitExponent).
type Params struct {
	// Ticker is the display symbol used in labels.
	Ticker string

	// MaxSupply is the asymptotic money supply the decay formula works against.
	MaxSupply float64

	// TailEmission is the minimum reward of any block.
	TailEmission float64

	// ActivationHeight is the last height mined at BlockTime. Every later
	// block is mined at PostActivationBlockTime and earns a doubled base reward.
	ActivationHeight uint64

	Genesis                 time.Time
	BlockTime               time.Duration
	PostActivationBlockTime time.Duration

	// AtomicUnitExponent is the power of ten between atomic and display units.
	AtomicUnitExponent int
}

// MoneroParams returns the mainnet Monero schedule: 2^64-1 piconero money
// supply, 0.6 XMR tail emission and the switch from one to two minute blocks
// after height 1009827.
func MoneroParams() Params {
	return Params{
		Ticker:                  "XMR",
		MaxSupply:               (math.Pow(2, 64) - 1) * math.Pow(10, -12),
		TailEmission:            0.6,
		ActivationHeight:        1009827,
		Genesis:                 time.Date(2014, time.May, 18, 10, 49, 53, 0, time.UTC),
		BlockTime:               time.Minute,
		PostActivationBlockTime: 2 * time.Minute,
		AtomicUnitExponent:      12,
	}
}

// Validate reports whether the parameters describe a usable curve.
func (p Params) Validate() error {
	if !(p.TailEmission > 0) {
		return contractError(ErrInvalidParams, fmt.Sprintf("tail emission must be positive, got %v", p.TailEmission))
	}
	if !(p.MaxSupply > 0) {
		return contractError(ErrInvalidParams, fmt.Sprintf("max supply must be positive, got %v", p.MaxSupply))
	}
	if p.BlockTime <= 0 || p.PostActivationBlockTime <= 0 {
		return contractError(ErrInvalidParams, "block times must be positive")
	}
	return nil
}

// Timeline returns the block time regimes used to date heights of this curve.
func (p Params) Timeline() Timeline {
	return Timeline{
		Genesis:                 p.Genesis,
		BlockTime:               p.BlockTime,
		ActivationHeight:        p.ActivationHeight,
		PostActivationBlockTime: p.PostActivationBlockTime,
	}
}

// BitcoinParams holds the halving schedule used as comparison curve.
type BitcoinParams struct {
	Ticker          string
	InitialReward   float64
	HalvingInterval uint64
	SupplyCap       float64
	Genesis         time.Time
	BlockTime       time.Duration

	// RewardScale normalizes the per-block reward to the primary curve's block
	// time so both reward series cover the same wall-clock window.
	RewardScale float64
}

// DefaultBitcoinParams returns mainnet Bitcoin with rewards scaled to a two
// minute window.
func DefaultBitcoinParams() BitcoinParams {
	return BitcoinParams{
		Ticker:          "BTC",
		InitialReward:   50,
		HalvingInterval: 210000,
		SupplyCap:       21000000,
		Genesis:         time.Date(2009, time.January, 3, 18, 15, 5, 0, time.UTC),
		BlockTime:       10 * time.Minute,
		RewardScale:     float64(2*time.Minute) / float64(10*time.Minute),
	}
}

// Validate reports whether the parameters describe a usable curve.
func (p BitcoinParams) Validate() error {
	switch {
	case !(p.InitialReward > 0):
		return contractError(ErrInvalidParams, fmt.Sprintf("initial reward must be positive, got %v", p.InitialReward))
	case p.HalvingInterval == 0:
		return contractError(ErrInvalidParams, "halving interval must be positive")
	case !(p.SupplyCap > 0):
		return contractError(ErrInvalidParams, fmt.Sprintf("supply cap must be positive, got %v", p.SupplyCap))
	case p.BlockTime <= 0:
		return contractError(ErrInvalidParams, "block time must be positive")
	case !(p.RewardScale > 0):
		return contractError(ErrInvalidParams, fmt.Sprintf("reward scale must be positive, got %v", p.RewardScale))
	}
	return nil
}

// Timeline returns a single-regime timeline for the halving curve.
func (p BitcoinParams) Timeline() Timeline {
	return Timeline{
		Genesis:                 p.Genesis,
		BlockTime:               p.BlockTime,
		PostActivationBlockTime: p.BlockTime,
	}
}
