package pipeline

import (
	"context"
	"time"

	"github.com/keagan/goalcut/internal/ffmpeg"
	"github.com/keagan/goalcut/internal/goals"
	"github.com/keagan/goalcut/internal/highlights"
	"github.com/keagan/goalcut/internal/store"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *store.Run) error
	Close() error
}

// Publisher announces the goals of a run.
type Publisher interface {
	PublishRun(ctx context.Context, runID, source string, events []goals.GoalEvent, clipKeys []string) error
	Close() error
}

// Uploader copies clips to remote storage.
type Uploader interface {
	Verify(ctx context.Context) error
	Key(file string) string
	UploadAll(ctx context.Context, files []string) ([]string, error)
}

// Clipper cuts highlight clips for detected goals.
type Clipper interface {
	Generate(ctx context.Context, video *ffmpeg.VideoInfo, events []goals.GoalEvent) (*highlights.Result, error)
}

// AnalyzeOptions configures a video analysis
type AnalyzeOptions struct {
	NoUpload bool
	NoClips  bool
	// DumpDetections writes every frame's detections to this CSV path.
	DumpDetections string
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Source   string
	Result   *goals.Result
	Clips    []highlights.Clip
	Reel     string
	Uploaded []string
	// Skipped counts input rows dropped before detection.
	Skipped int
	Elapsed time.Duration
	// Warnings collects stage failures that did not abort the run.
	Warnings []error

	clipsWanted  bool
	uploadWanted bool
}

// Events returns the detected goals.
func (r *Report) Events() []goals.GoalEvent {
	if r.Result == nil {
		return nil
	}
	return r.Result.Events
}

// Success mirrors the batch tool's exit status: goals were found, and when
// clips or uploads were requested at least one of each was produced.
func (r *Report) Success() bool {
	if len(r.Events()) == 0 {
		return false
	}
	if r.clipsWanted && len(r.Clips) == 0 {
		return false
	}
	if r.uploadWanted && len(r.Uploaded) == 0 {
		return false
	}
	return true
}
