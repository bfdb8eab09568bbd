package goals

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid goal detection config")

// Config holds the tunables of the goal detector.
type Config struct {
	BallWeight                   float64 `yaml:"ball_weight"`
	CelebrationWeight            float64 `yaml:"celebration_weight"`
	SmoothingWindowSeconds       float64 `yaml:"smoothing_window_seconds"`
	MinPeakDistanceSeconds       float64 `yaml:"min_peak_distance_seconds"`
	MinProminence                float64 `yaml:"min_prominence"`
	HeightStdMultiplier          float64 `yaml:"height_std_multiplier"`
	CelebrationClusterMinPlayers int     `yaml:"celebration_cluster_min_players"`
	// CelebrationClusterRadius is the link distance between two players as a
	// fraction of the frame width.
	CelebrationClusterRadius float64 `yaml:"celebration_cluster_radius"`
	// GoalAreaFraction is the width of each goal area as a fraction of the
	// frame width; GoalAreaTop and GoalAreaBottom bound it vertically.
	GoalAreaFraction float64 `yaml:"goal_area_fraction"`
	GoalAreaTop      float64 `yaml:"goal_area_top"`
	GoalAreaBottom   float64 `yaml:"goal_area_bottom"`
	// MaxGoals caps the number of reported events, 0 for no cap.
	MaxGoals int `yaml:"max_goals"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		BallWeight:                   0.65,
		CelebrationWeight:            0.35,
		SmoothingWindowSeconds:       2,
		MinPeakDistanceSeconds:       20,
		MinProminence:                0.3,
		HeightStdMultiplier:          1.0,
		CelebrationClusterMinPlayers: 6,
		CelebrationClusterRadius:     0.1,
		GoalAreaFraction:             0.2,
		GoalAreaTop:                  0.3,
		GoalAreaBottom:               0.7,
	}
}

// Validate checks every field and reports the first violation.
func (c Config) Validate() error {
	nonNegative := []struct {
		name  string
		value float64
	}{
		{"ball_weight", c.BallWeight},
		{"celebration_weight", c.CelebrationWeight},
		{"smoothing_window_seconds", c.SmoothingWindowSeconds},
		{"min_peak_distance_seconds", c.MinPeakDistanceSeconds},
		{"min_prominence", c.MinProminence},
		{"celebration_cluster_radius", c.CelebrationClusterRadius},
	}
	for _, f := range nonNegative {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be a non-negative number, got %v", f.name, f.value)
		}
	}
	if math.IsNaN(c.HeightStdMultiplier) || math.IsInf(c.HeightStdMultiplier, 0) {
		return errors.Wrapf(ErrInvalidConfig, "height_std_multiplier must be finite, got %v", c.HeightStdMultiplier)
	}
	if c.BallWeight+c.CelebrationWeight == 0 {
		return errors.Wrap(ErrInvalidConfig, "ball_weight and celebration_weight cannot both be zero")
	}
	if c.CelebrationClusterMinPlayers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "celebration_cluster_min_players must be at least 1, got %d", c.CelebrationClusterMinPlayers)
	}
	if !(c.GoalAreaFraction > 0 && c.GoalAreaFraction <= 0.5) {
		return errors.Wrapf(ErrInvalidConfig, "goal_area_fraction must be in (0, 0.5], got %v", c.GoalAreaFraction)
	}
	if !(c.GoalAreaTop >= 0 && c.GoalAreaTop < c.GoalAreaBottom && c.GoalAreaBottom <= 1) {
		return errors.Wrapf(ErrInvalidConfig, "goal area must satisfy 0 <= top < bottom <= 1, got %v..%v", c.GoalAreaTop, c.GoalAreaBottom)
	}
	if c.MaxGoals < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_goals cannot be negative, got %d", c.MaxGoals)
	}
	return nil
}
