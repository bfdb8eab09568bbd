package goals

import (
	"github.com/keagan/goalcut/internal/detection"
)

type region struct {
	xMin, yMin, xMax, yMax float64
}

func (r region) contains(x, y float64) bool {
	return x >= r.xMin && x <= r.xMax && y >= r.yMin && y <= r.yMax
}

// Extractor reduces the detections of a frame to a FrameSignal. It holds no
// state between frames.
type Extractor struct {
	config     Config
	goalAreas  [2]region
	linkRadius float64
}

// NewExtractor prepares the goal areas for a frame of the given size.
func NewExtractor(cfg Config, width, height float64) *Extractor {
	top, bottom := cfg.GoalAreaTop*height, cfg.GoalAreaBottom*height
	edge := cfg.GoalAreaFraction * width
	return &Extractor{
		config: cfg,
		goalAreas: [2]region{
			{xMin: 0, yMin: top, xMax: edge, yMax: bottom},
			{xMin: width - edge, yMin: top, xMax: width, yMax: bottom},
		},
		linkRadius: cfg.CelebrationClusterRadius * width,
	}
}

// Extract computes the signal of one frame. Detections that fail validation
// are left out and returned as errors; they never fail the frame.
func (e *Extractor) Extract(index int, timestamp float64, dets []detection.Detection) (FrameSignal, []error) {
	sig := FrameSignal{FrameIndex: index, Timestamp: timestamp}

	var (
		skipped []error
		players []point
	)
	for _, d := range dets {
		if err := d.Validate(); err != nil {
			skipped = append(skipped, err)
			continue
		}
		x, y := d.Box.Center()
		switch d.Class {
		case detection.ClassBall:
			if e.inGoalArea(x, y) {
				sig.BallInGoal = 1
			}
		case detection.ClassPerson:
			players = append(players, point{x, y})
		}
	}

	// The largest group must exceed the minimum, not just reach it.
	if len(players) > e.config.CelebrationClusterMinPlayers &&
		largestCluster(players, e.linkRadius) > e.config.CelebrationClusterMinPlayers {
		sig.CelebrationScore = 1
	}

	sig.Confidence = clamp01(e.config.BallWeight*sig.BallInGoal + e.config.CelebrationWeight*sig.CelebrationScore)
	return sig, skipped
}

func (e *Extractor) inGoalArea(x, y float64) bool {
	return e.goalAreas[0].contains(x, y) || e.goalAreas[1].contains(x, y)
}
