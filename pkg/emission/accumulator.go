package emission

import "fmt"

// Checkpoint is a known (height, supply) pair accumulation can resume from.
// The zero value is genesis: height 0 with nothing emitted.
type Checkpoint struct {
	Height uint64  `json:"height"`
	Supply float64 `json:"supply"`
}

func checkTarget(target uint64, cp Checkpoint) error {
	if cp.Height > target {
		return contractError(ErrCheckpointAhead,
			fmt.Sprintf("checkpoint height %d is past target height %d", cp.Height, target))
	}
	return nil
}

// SupplyAt advances cp to target by adding the current-schedule reward of
// every block in (cp.Height, target]. The returned checkpoint carries the
// supply at target and can be passed to the next call, so a sweep over
// increasing targets costs O(final target) in total.
func (m *Model) SupplyAt(target uint64, cp Checkpoint) (Checkpoint, error) {
	if err := checkTarget(target, cp); err != nil {
		return cp, err
	}
	supply := cp.Supply
	for h := cp.Height + 1; h <= target; h++ {
		supply += m.Reward(h, supply, CurrentSchedule)
	}
	return Checkpoint{Height: target, Supply: supply}, nil
}

// SupplyAt advances cp to target by adding every block reward in
// (cp.Height, target]. Accumulation stops at the supply cap; the part of a
// reward that would cross it is discarded.
func (m *BitcoinModel) SupplyAt(target uint64, cp Checkpoint) (Checkpoint, error) {
	if err := checkTarget(target, cp); err != nil {
		return cp, err
	}
	supply := cp.Supply
	for h := cp.Height + 1; h <= target && supply < m.params.SupplyCap; h++ {
		supply += m.Reward(h)
		if supply > m.params.SupplyCap {
			supply = m.params.SupplyCap
		}
	}
	return Checkpoint{Height: target, Supply: supply}, nil
}
