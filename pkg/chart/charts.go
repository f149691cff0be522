package chart

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/types"
)

// Charts samples the primary curve and returns it in wire form.
func (s *Sampler) Charts(maxHeight, step uint64) (*types.ChartSet, error) {
	supply, reward, err := s.Sample(maxHeight, step)
	if err != nil {
		return nil, err
	}
	set := &types.ChartSet{
		Ticker:    s.model.Params().Ticker,
		MaxHeight: maxHeight,
		Step:      step,
		Supply:    supply.export(),
		Reward:    reward.export(),
	}
	if h, ok := supply.TailStart(); ok {
		set.TailStart = &h
	}
	set.ETag = computeETag(set)
	return set, nil
}

// ComparisonCharts samples the comparison curve and returns it in wire form.
func (s *Sampler) ComparisonCharts(startHeight, maxHeight, step uint64) (*types.ChartSet, error) {
	supply, reward, err := s.SampleComparison(startHeight, maxHeight, step)
	if err != nil {
		return nil, err
	}
	set := &types.ChartSet{
		Ticker:    s.bitcoin.Params().Ticker,
		MaxHeight: maxHeight,
		Step:      step,
		StartAt:   startHeight,
		Supply:    supply.export(),
		Reward:    reward.export(),
	}
	set.ETag = computeETag(set)
	return set, nil
}

// HeightInfo simulates the primary curve up to height. Supply includes the
// block at height; rewards are priced against the supply emitted before it.
func (s *Sampler) HeightInfo(height uint64) (types.HeightInfo, error) {
	before, after, err := s.advance(emission.Checkpoint{}, height)
	if err != nil {
		return types.HeightInfo{}, err
	}
	reward := s.model.Reward(height, before.Supply, emission.CurrentSchedule)
	return types.HeightInfo{
		Height:       height,
		ExpectedDate: s.model.ExpectedDate(height),
		Supply:       after.Supply,
		Reward:       reward,
		LegacyReward: s.model.Reward(height, before.Supply, emission.LegacySchedule),
		Tail:         s.model.IsTail(reward),
	}, nil
}

func (s Series) export() types.ChartSeries {
	out := types.ChartSeries{Name: s.Name, Points: make([]types.ChartPoint, 0, len(s.Points))}
	for _, p := range s.Points {
		out.Points = append(out.Points, types.ChartPoint{
			X:      p.Time.UnixMilli(),
			Y:      p.Value,
			Label:  p.Label,
			Color:  p.Color,
			Height: p.Height,
		})
	}
	return out
}

func computeETag(set *types.ChartSet) string {
	h := sha1.New()
	h.Write([]byte(set.Ticker))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range []uint64{set.StartAt, set.MaxHeight, set.Step} {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for _, series := range []types.ChartSeries{set.Supply, set.Reward} {
		h.Write([]byte(series.Name))
		h.Write([]byte{0})
		for _, p := range series.Points {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Y))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
