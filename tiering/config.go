package tiering

import (
	"fmt"
	"math"
)

// Weights are the shares each signal contributes to a total score.
type Weights struct {
	Access     float64 `yaml:"access"`
	Importance float64 `yaml:"importance"`
	Age        float64 `yaml:"age"`
	Connection float64 `yaml:"connection"`
}

func (w Weights) sum() float64 { return w.Access + w.Importance + w.Age + w.Connection }

// Config tunes scoring and optimization.
type Config struct {
	Weights       Weights `yaml:"weights,omitempty"`
	HotThreshold  float64 `yaml:"hot_threshold,omitempty"`
	WarmThreshold float64 `yaml:"warm_threshold,omitempty"`

	// AccessSaturation is the access count at which frequency reaches 1.
	AccessSaturation   float64 `yaml:"access_saturation,omitempty"`
	AccessHalfLifeDays float64 `yaml:"access_half_life_days,omitempty"`
	AgeHalfLifeDays    float64 `yaml:"age_half_life_days,omitempty"`
	AgeFloor           float64 `yaml:"age_floor,omitempty"`
	// ConnectionScale is the weighted degree at which the connection score
	// reaches 1-1/e.
	ConnectionScale float64 `yaml:"connection_scale,omitempty"`

	// MaxWorkingSet bounds how many memories one pass considers. Zero means
	// all of them.
	MaxWorkingSet int `yaml:"max_working_set,omitempty"`
	Workers       int `yaml:"workers,omitempty"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Weights:            Weights{Access: 0.35, Importance: 0.35, Age: 0.15, Connection: 0.15},
		HotThreshold:       0.6,
		WarmThreshold:      0.35,
		AccessSaturation:   50,
		AccessHalfLifeDays: 7,
		AgeHalfLifeDays:    30,
		AgeFloor:           0.1,
		ConnectionScale:    3,
		MaxWorkingSet:      10000,
		Workers:            4,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	w := c.Weights
	if w.Access < 0 || w.Importance < 0 || w.Age < 0 || w.Connection < 0 {
		return fmt.Errorf("tiering: weights must not be negative")
	}
	if math.Abs(w.sum()-1) > 1e-6 {
		return fmt.Errorf("tiering: weights must sum to 1, got %f", w.sum())
	}
	if c.HotThreshold <= c.WarmThreshold {
		return fmt.Errorf("tiering: hot threshold %f must exceed warm threshold %f", c.HotThreshold, c.WarmThreshold)
	}
	if c.WarmThreshold < 0 || c.HotThreshold > 1 {
		return fmt.Errorf("tiering: thresholds must be within [0,1]")
	}
	if c.AccessSaturation <= 0 || c.AccessHalfLifeDays <= 0 || c.AgeHalfLifeDays <= 0 || c.ConnectionScale <= 0 {
		return fmt.Errorf("tiering: saturation, half-lives and connection scale must be positive")
	}
	if c.AgeFloor < 0 || c.AgeFloor > 1 {
		return fmt.Errorf("tiering: age floor must be within [0,1]")
	}
	if c.MaxWorkingSet < 0 || c.Workers <= 0 {
		return fmt.Errorf("tiering: working set must not be negative and workers must be positive")
	}
	return nil
}
