package emission

import (
	"math"
	"math/bits"
	"time"
)

// Timeline maps block heights to estimated mining times using one block time
// up to ActivationHeight and another after it.
type Timeline struct {
	Genesis                 time.Time
	BlockTime               time.Duration
	ActivationHeight        uint64
	PostActivationBlockTime time.Duration
}

// ExpectedDate returns Genesis plus the accumulated block times up to height.
// The two regimes meet at ActivationHeight, so the result is continuous there.
func (t Timeline) ExpectedDate(height uint64) time.Time {
	if height < t.ActivationHeight {
		return addBlocks(t.Genesis, height, t.BlockTime)
	}
	switched := addBlocks(t.Genesis, t.ActivationHeight, t.BlockTime)
	return addBlocks(switched, height-t.ActivationHeight, t.PostActivationBlockTime)
}

// maxOffsetSeconds caps offsets far beyond any representable calendar date.
const maxOffsetSeconds = 1 << 60

// addBlocks returns from + n*blockTime without overflowing time.Duration,
// which only spans about 292 years.
func addBlocks(from time.Time, n uint64, blockTime time.Duration) time.Time {
	hi, lo := bits.Mul64(n, uint64(blockTime))
	if hi == 0 && lo <= math.MaxInt64 {
		return from.Add(time.Duration(lo))
	}
	var sec, nsec uint64
	if hi < uint64(time.Second) {
		sec, nsec = bits.Div64(hi, lo, uint64(time.Second))
	} else {
		sec = maxOffsetSeconds
	}
	if sec > maxOffsetSeconds {
		sec, nsec = maxOffsetSeconds, 0
	}
	return time.Unix(from.Unix()+int64(sec), int64(from.Nanosecond())+int64(nsec)).In(from.Location())
}
