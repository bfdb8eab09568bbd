// Package goals turns per-frame detections into a short list of goal events.
//
// Each frame is reduced to a confidence in [0,1] that combines a ball-in-goal
// cue with a player celebration cue. The series is smoothed with a trailing
// time window and scanned once for peaks that are high, prominent and far
// enough apart; the surviving peaks become numbered GoalEvents.
package goals

// FrameSignal is the fused evidence for one frame.
type FrameSignal struct {
	FrameIndex       int
	Timestamp        float64
	BallInGoal       float64
	CelebrationScore float64
	Confidence       float64
}

// SmoothedSample is one point of the smoothed confidence series.
type SmoothedSample struct {
	FrameIndex int
	Timestamp  float64
	Value      float64
}

// Peak is a local maximum of the smoothed series that passed every filter.
type Peak struct {
	FrameIndex int
	Timestamp  float64
	Value      float64
	Prominence float64
}

// GoalEvent is a detected goal moment.
type GoalEvent struct {
	SequenceNumber int     `json:"sequence_number"`
	Timestamp      float64 `json:"timestamp_seconds"`
	Confidence     float64 `json:"confidence"`
	FrameIndex     int     `json:"frame_index"`
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
