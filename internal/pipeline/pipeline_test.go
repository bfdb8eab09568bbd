package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"go.viam.com/test"

	"github.com/keagan/goalcut/internal/config"
	"github.com/keagan/goalcut/internal/detection"
	"github.com/keagan/goalcut/internal/ffmpeg"
	"github.com/keagan/goalcut/internal/goals"
	"github.com/keagan/goalcut/internal/highlights"
	"github.com/keagan/goalcut/internal/store"
)

const testFPS = 25

var testInfo = detection.StreamInfo{FPS: testFPS, Width: 1280, Height: 720, FrameCount: 60 * testFPS}

type fakeStore struct {
	runs []*store.Run
	err  error
}

func (f *fakeStore) SaveRun(_ context.Context, run *store.Run) error {
	if f.err != nil {
		return f.err
	}
	run.ID = "run-1"
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type published struct {
	runID, source string
	events        []goals.GoalEvent
	clipKeys      []string
}

type fakePublisher struct {
	calls []published
}

func (f *fakePublisher) PublishRun(_ context.Context, runID, source string, events []goals.GoalEvent, clipKeys []string) error {
	f.calls = append(f.calls, published{runID, source, events, clipKeys})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeUploader struct {
	files []string
}

func (f *fakeUploader) Verify(context.Context) error { return nil }

func (f *fakeUploader) Key(file string) string { return filepath.Base(file) }

func (f *fakeUploader) UploadAll(_ context.Context, files []string) ([]string, error) {
	f.files = files
	keys := make([]string, len(files))
	for i, file := range files {
		keys[i] = filepath.Base(file)
	}
	return keys, nil
}

type fakeClipper struct {
	res *highlights.Result
	err error
}

func (f fakeClipper) Generate(context.Context, *ffmpeg.VideoInfo, []goals.GoalEvent) (*highlights.Result, error) {
	return f.res, f.err
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := config.Default()
	d, err := goals.NewDetector(zerolog.Nop(), cfg.Detection)
	test.That(t, err, test.ShouldBeNil)
	return &Pipeline{
		logger:   zerolog.Nop(),
		config:   cfg,
		detector: d,
		tempDir:  t.TempDir(),
	}
}

// writeDetections records a 60 second clip with the ball in the left goal and
// a seven player huddle between 20s and 24s.
func writeDetections(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detections.csv")
	w, err := detection.CreateCSV(path, testFPS)
	test.That(t, err, test.ShouldBeNil)
	for i := 20 * testFPS; i < 24*testFPS; i++ {
		dets := []detection.Detection{{
			Class:      detection.ClassBall,
			Box:        detection.Box{XMin: 90, YMin: 350, XMax: 110, YMax: 370},
			Confidence: 0.8,
		}}
		for p := 0; p < 7; p++ {
			x := 600 + float64(p)*40
			dets = append(dets, detection.Detection{
				Class:      detection.ClassPerson,
				Box:        detection.Box{XMin: x, YMin: 300, XMax: x + 30, YMax: 400},
				Confidence: 0.9,
			})
		}
		test.That(t, w.WriteFrame(detection.Frame{Index: i, Detections: dets}), test.ShouldBeNil)
	}
	test.That(t, w.Close(), test.ShouldBeNil)
	return path
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "match.mp4")
	test.That(t, os.WriteFile(video, []byte("x"), 0o644), test.ShouldBeNil)
	odd := filepath.Join(dir, "match.webm")
	test.That(t, os.WriteFile(odd, []byte("x"), 0o644), test.ShouldBeNil)

	test.That(t, ValidateInput(zerolog.Nop(), video), test.ShouldBeNil)
	test.That(t, ValidateInput(zerolog.Nop(), odd), test.ShouldBeNil)

	err := ValidateInput(zerolog.Nop(), filepath.Join(dir, "missing.mp4"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not found")
	test.That(t, ValidateInput(zerolog.Nop(), ""), test.ShouldNotBeNil)
	test.That(t, ValidateInput(zerolog.Nop(), dir), test.ShouldNotBeNil)
}

func TestDetectFile(t *testing.T) {
	p := newTestPipeline(t)
	st := &fakeStore{}
	pub := &fakePublisher{}
	p.store = st
	p.publisher = pub

	path := writeDetections(t)
	report, err := p.DetectFile(context.Background(), path, testInfo)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.RunID, test.ShouldEqual, "run-1")
	test.That(t, report.Result.Frames, test.ShouldEqual, 60*testFPS)

	events := report.Events()
	test.That(t, events, test.ShouldHaveLength, 1)
	test.That(t, events[0].Timestamp, test.ShouldBeBetween, 20.0, 24.5)
	test.That(t, report.Success(), test.ShouldBeTrue)

	test.That(t, st.runs, test.ShouldHaveLength, 1)
	run := st.runs[0]
	test.That(t, run.Source, test.ShouldEqual, path)
	test.That(t, run.FPS, test.ShouldEqual, float64(testFPS))
	test.That(t, run.DurationSeconds, test.ShouldEqual, 60.0)
	test.That(t, run.Events, test.ShouldHaveLength, 1)
	test.That(t, run.Events[0].ClipPath, test.ShouldBeEmpty)

	test.That(t, pub.calls, test.ShouldHaveLength, 1)
	test.That(t, pub.calls[0].runID, test.ShouldEqual, "run-1")
	test.That(t, pub.calls[0].events, test.ShouldResemble, events)
	test.That(t, pub.calls[0].clipKeys, test.ShouldBeNil)
}

func TestDetectFileWithoutStore(t *testing.T) {
	p := newTestPipeline(t)
	report, err := p.DetectFile(context.Background(), writeDetections(t), testInfo)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.RunID, test.ShouldNotBeEmpty)
}

func TestDetectFileStoreFailure(t *testing.T) {
	p := newTestPipeline(t)
	p.store = &fakeStore{err: errors.New("database is locked")}
	report, err := p.DetectFile(context.Background(), writeDetections(t), testInfo)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Warnings, test.ShouldHaveLength, 1)
	test.That(t, report.RunID, test.ShouldNotBeEmpty)
}

func TestDetectFileMissing(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.DetectFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"), testInfo)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClipUploadRecord(t *testing.T) {
	p := newTestPipeline(t)
	st := &fakeStore{}
	pub := &fakePublisher{}
	up := &fakeUploader{}
	p.store, p.publisher, p.uploader = st, pub, up

	events := []goals.GoalEvent{
		{SequenceNumber: 1, Timestamp: 31, Confidence: 0.85, FrameIndex: 775},
		{SequenceNumber: 2, Timestamp: 91, Confidence: 0.77, FrameIndex: 2275},
	}
	report := &Report{
		Source:       "match.mp4",
		Result:       &goals.Result{Info: testInfo, Frames: 3000, Duration: 120, Events: events},
		clipsWanted:  true,
		uploadWanted: true,
	}
	clip := highlights.Clip{
		Goal:  events[1],
		Start: 81 * time.Second,
		End:   101 * time.Second,
		Path:  "/tmp/clips/goal_highlight_01_2.mp4",
	}
	clipper := fakeClipper{
		res: &highlights.Result{Clips: []highlights.Clip{clip}, Failed: 1},
		err: multierr.Combine(errors.New("goal 1 at 31.00s: encoder exploded")),
	}

	test.That(t, p.clip(context.Background(), clipper, &ffmpeg.VideoInfo{}, report), test.ShouldBeNil)
	test.That(t, report.Clips, test.ShouldHaveLength, 1)
	test.That(t, report.Warnings, test.ShouldHaveLength, 1)

	p.upload(context.Background(), report)
	test.That(t, up.files, test.ShouldResemble, []string{clip.Path})
	test.That(t, report.Uploaded, test.ShouldResemble, []string{"goal_highlight_01_2.mp4"})

	p.record(context.Background(), report)
	test.That(t, st.runs[0].Events[0].ClipPath, test.ShouldBeEmpty)
	test.That(t, st.runs[0].Events[1].ClipPath, test.ShouldEqual, clip.Path)
	test.That(t, pub.calls[0].clipKeys, test.ShouldResemble, []string{"", "goal_highlight_01_2.mp4"})
	test.That(t, report.Success(), test.ShouldBeTrue)

	var out bytes.Buffer
	PrintSummary(&out, report)
	summary := out.String()
	test.That(t, summary, test.ShouldContainSubstring, "Goals Detected: 2")
	test.That(t, summary, test.ShouldContainSubstring, "Goal 1: 00:31 (31.00s)")
	test.That(t, summary, test.ShouldContainSubstring, "Goal 2: 01:31 (91.00s)")
	test.That(t, summary, test.ShouldContainSubstring, "goal_highlight_01_2.mp4")
	test.That(t, summary, test.ShouldContainSubstring, "01:21 - 01:41")
	test.That(t, summary, test.ShouldContainSubstring, "Files Uploaded to S3: 1")
	test.That(t, summary, test.ShouldContainSubstring, "encoder exploded")
	test.That(t, summary, test.ShouldContainSubstring, "Pipeline Status: SUCCESS")
}

func TestClipCancelled(t *testing.T) {
	p := newTestPipeline(t)
	report := &Report{Result: &goals.Result{Events: []goals.GoalEvent{{SequenceNumber: 1}}}}
	err := p.clip(context.Background(), fakeClipper{err: context.Canceled}, &ffmpeg.VideoInfo{}, report)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestReportSuccess(t *testing.T) {
	none := &Report{Result: &goals.Result{}}
	test.That(t, none.Success(), test.ShouldBeFalse)

	found := &Report{Result: &goals.Result{Events: []goals.GoalEvent{{SequenceNumber: 1}}}}
	test.That(t, found.Success(), test.ShouldBeTrue)

	found.clipsWanted = true
	test.That(t, found.Success(), test.ShouldBeFalse)
	found.Clips = []highlights.Clip{{}}
	test.That(t, found.Success(), test.ShouldBeTrue)

	found.uploadWanted = true
	test.That(t, found.Success(), test.ShouldBeFalse)

	var out bytes.Buffer
	PrintSummary(&out, none)
	test.That(t, out.String(), test.ShouldContainSubstring, "Goals Detected: 0")
	test.That(t, out.String(), test.ShouldContainSubstring, "Pipeline Status: FAILED")
}

func TestCloseRemovesTempDir(t *testing.T) {
	p := newTestPipeline(t)
	dir := filepath.Join(t.TempDir(), "run")
	test.That(t, os.MkdirAll(dir, 0o755), test.ShouldBeNil)
	p.tempDir = dir
	p.store = &fakeStore{}
	test.That(t, p.Close(), test.ShouldBeNil)
	_, err := os.Stat(dir)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
