package types

import "time"

// ChartPoint is one data point as consumed by the chart page. X is the
// expected mining time in Unix milliseconds.
type ChartPoint struct {
	X      int64   `json:"x"`
	Y      float64 `json:"y"`
	Label  string  `json:"label"`
	Color  string  `json:"color,omitempty"`
	Height uint64  `json:"height"`
}

// ChartSeries is an ordered, chronologically ascending list of points.
type ChartSeries struct {
	Name   string       `json:"name"`
	Points []ChartPoint `json:"points"`
}

// ChartSet is a supply series and a reward series sampled at the same heights.
type ChartSet struct {
	Ticker    string      `json:"ticker"`
	MaxHeight uint64      `json:"max_height"`
	Step      uint64      `json:"step"`
	StartAt   uint64      `json:"start_height"`
	ETag      string      `json:"etag"`
	Supply    ChartSeries `json:"supply"`
	Reward    ChartSeries `json:"reward"`
	// TailStart is the first sampled height paying the tail emission, if any.
	TailStart *uint64 `json:"tail_start_height,omitempty"`
}

// TotalEmission is the live total supply reported by a block explorer.
// Atomic is the raw integer string so no precision is lost in transit.
type TotalEmission struct {
	Atomic    string    `json:"atomic"`
	Amount    float64   `json:"amount"`
	Ticker    string    `json:"ticker"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HeightInfo describes the simulated state of the chain at one height.
type HeightInfo struct {
	Height       uint64    `json:"height"`
	ExpectedDate time.Time `json:"expected_date"`
	Supply       float64   `json:"supply"`
	Reward       float64   `json:"reward"`
	LegacyReward float64   `json:"legacy_reward"`
	Tail         bool      `json:"tail_emission"`
}
