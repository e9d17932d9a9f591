package tiering

import (
	"math"
	"time"

	"github.com/aschepis/backscratcher/memtier/memory"
)

const day = 24 * time.Hour

func days(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d) / float64(day)
}

func halfLife(elapsedDays, halfLifeDays float64) float64 {
	return math.Pow(0.5, elapsedDays/halfLifeDays)
}

// AccessScore blends access frequency (log-saturating) with recency
// (exponential half-life).
func (c Config) AccessScore(m *memory.Entity, now time.Time) float64 {
	freq := math.Log1p(float64(max(0, m.AccessCount))) / math.Log1p(c.AccessSaturation)
	freq = min(1, freq)

	last := m.LastAccessed
	if last.IsZero() {
		last = m.CreatedAt
	}
	var recency float64
	if !last.IsZero() {
		recency = halfLife(days(now.Sub(last)), c.AccessHalfLifeDays)
	}
	return memory.Clamp01(0.6*freq + 0.4*recency)
}

// ImportanceScore maps importance onto [0,1].
func (c Config) ImportanceScore(m *memory.Entity) float64 {
	return float64(memory.ClampImportance(m.Importance)) / 100
}

// AgeScore halves every AgeHalfLifeDays and never drops below AgeFloor.
func (c Config) AgeScore(m *memory.Entity, now time.Time) float64 {
	if m.CreatedAt.IsZero() {
		return c.AgeFloor
	}
	return memory.Clamp01(max(c.AgeFloor, halfLife(days(now.Sub(m.CreatedAt)), c.AgeHalfLifeDays)))
}

// ConnectionScore saturates the summed strength of incident edges.
func (c Config) ConnectionScore(weightedDegree float64) float64 {
	if weightedDegree <= 0 {
		return 0
	}
	return memory.Clamp01(1 - math.Exp(-weightedDegree/c.ConnectionScale))
}

// RecommendTier maps a total score onto a tier.
func (c Config) RecommendTier(total float64) memory.Tier {
	switch {
	case total >= c.HotThreshold:
		return memory.TierHot
	case total >= c.WarmThreshold:
		return memory.TierWarm
	default:
		return memory.TierCold
	}
}

// Score computes every component for one memory. It is a pure function of
// its inputs.
func (c Config) Score(m *memory.Entity, weightedDegree float64, now time.Time) memory.Score {
	s := memory.Score{
		MemoryID:        m.ID,
		AccessScore:     c.AccessScore(m, now),
		ImportanceScore: c.ImportanceScore(m),
		AgeScore:        c.AgeScore(m, now),
		ConnectionScore: c.ConnectionScore(weightedDegree),
	}
	w := c.Weights
	s.TotalScore = memory.Clamp01(w.Access*s.AccessScore +
		w.Importance*s.ImportanceScore +
		w.Age*s.AgeScore +
		w.Connection*s.ConnectionScore)
	s.RecommendedTier = c.RecommendTier(s.TotalScore)
	return s
}
