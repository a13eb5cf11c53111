package models

import (
	"math"
	"time"
)

const secondsPerDay = 86400.0

// StatsSnapshot holds usage counters derived from the backend's raw stats.
type StatsSnapshot struct {
	TotalCommands    int     `json:"total_commands"`
	OnCommands       int     `json:"on_commands"`
	TotalDurationSec float64 `json:"total_duration_sec"`
	AvgDurationSec   float64 `json:"avg_duration_sec"`
	EfficiencyPct    float64 `json:"efficiency_pct"` // 0..100
}

// EfficiencyPct maps an average session length onto a share of a day, clamped to [0, 100].
func EfficiencyPct(avgSessionSec float64) float64 {
	pct := avgSessionSec / secondsPerDay * 100
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// AutoRefreshConfig governs the polling scheduler.
type AutoRefreshConfig struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"interval_ms"`
}

// Interval returns the polling period, falling back to DefaultRefreshInterval.
func (c AutoRefreshConfig) Interval() time.Duration {
	if c.IntervalMs <= 0 {
		return DefaultRefreshInterval
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// DefaultRefreshInterval is used when no interval is configured.
const DefaultRefreshInterval = 5 * time.Second
