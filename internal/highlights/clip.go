// Package highlights cuts a short clip around every detected goal.
package highlights

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/keagan/goalcut/internal/goals"
)

// Clip is a highlight cut from the source video
type Clip struct {
	Goal      goals.GoalEvent
	Start     time.Duration
	End       time.Duration
	Duration  time.Duration
	Path      string
	Thumbnail string
	SizeMB    float64
	// Compressed is set when the clip was re-encoded to fit the size limit.
	Compressed bool
}

// Config controls clip cutting.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// OutputDir empty writes clips into the run's temporary directory.
	OutputDir string `yaml:"output_dir"`
	// PreSeconds and PostSeconds bound the clip around the goal moment.
	PreSeconds  float64 `yaml:"pre_seconds"`
	PostSeconds float64 `yaml:"post_seconds"`
	MarkerText  string  `yaml:"marker_text"`
	// MarkerSeconds is how long the marker stays up on each side of the goal.
	MarkerSeconds float64 `yaml:"marker_seconds"`
	MaxSizeMB     float64 `yaml:"max_size_mb"`
	Workers       int     `yaml:"workers"`
	Reel          bool    `yaml:"reel"`
	ReelName      string  `yaml:"reel_name"`
	Thumbnails    bool    `yaml:"thumbnails"`
	ThumbWidth    int     `yaml:"thumbnail_width"`
}

// DefaultConfig returns 20 second clips centred on the goal.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		OutputDir:     "highlights",
		PreSeconds:    10,
		PostSeconds:   10,
		MarkerText:    "GOAL!",
		MarkerSeconds: 1,
		MaxSizeMB:     50,
		Workers:       2,
		ReelName:      "goal_highlights.mp4",
		ThumbWidth:    640,
	}
}

// Validate checks the settings used when cutting.
func (c Config) Validate() error {
	if c.PreSeconds < 0 || c.PostSeconds < 0 || c.PreSeconds+c.PostSeconds == 0 {
		return fmt.Errorf("invalid highlight window: pre %.2fs, post %.2fs", c.PreSeconds, c.PostSeconds)
	}
	if c.Workers < 1 {
		return fmt.Errorf("highlights workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxSizeMB < 0 {
		return fmt.Errorf("highlights max_size_mb must not be negative")
	}
	return nil
}

// Window returns the clip bounds in seconds around ts, clamped to the video.
// A non-positive duration leaves the end unclamped.
func Window(ts, pre, post, duration float64) (start, end float64) {
	start = math.Max(0, ts-pre)
	end = ts + post
	if duration > 0 && end > duration {
		end = duration
	}
	return start, end
}

// FileName names the clip after the goal minute and its sequence number,
// e.g. goal_highlight_07_2.mp4.
func FileName(ev goals.GoalEvent) string {
	minute := int(ev.Timestamp / 60)
	return fmt.Sprintf("goal_highlight_%02d_%d.mp4", minute, ev.SequenceNumber)
}

func thumbnailPath(clipPath string) string {
	ext := filepath.Ext(clipPath)
	return clipPath[:len(clipPath)-len(ext)] + ".jpg"
}
