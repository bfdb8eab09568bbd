package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/keagan/goalcut/internal/config"
	"github.com/keagan/goalcut/internal/detection"
	"github.com/keagan/goalcut/internal/ffmpeg"
	"github.com/keagan/goalcut/internal/goals"
	"github.com/keagan/goalcut/internal/highlights"
	"github.com/keagan/goalcut/internal/publish"
	"github.com/keagan/goalcut/internal/store"
	"github.com/keagan/goalcut/internal/upload"
	"github.com/keagan/goalcut/internal/vision"
	"github.com/keagan/goalcut/pkg/util"
)

const largeInputMB = 1000

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"}

// Pipeline orchestrates the entire video processing workflow
type Pipeline struct {
	logger    zerolog.Logger
	config    *config.Config
	detector  *goals.Detector
	store     RunStore
	publisher Publisher
	uploader  Uploader
	tempDir   string
}

// New creates a new pipeline instance. Storage, publishing and uploads are
// connected when the configuration enables them.
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	detector, err := goals.NewDetector(logger, cfg.Detection)
	if err != nil {
		return nil, err
	}

	if cfg.TempDir != "" {
		if err := util.EnsureDir(cfg.TempDir); err != nil {
			return nil, fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	tempDir, err := os.MkdirTemp(cfg.TempDir, "goalcut-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	p := &Pipeline{
		logger:   logger.With().Str("component", "pipeline").Logger(),
		config:   cfg,
		detector: detector,
		tempDir:  tempDir,
	}
	p.logger.Info().Str("temp_dir", tempDir).Msg("pipeline initialized")

	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.store = st
	}
	if cfg.Kafka.Enabled {
		kp, err := publish.NewKafkaPublisher(logger, cfg.Kafka)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.publisher = kp
	}
	if cfg.Upload.Enabled {
		up, err := upload.NewS3Uploader(logger, cfg.Upload)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.uploader = up
	}
	return p, nil
}

// Close flushes the publisher, closes the store and removes the temp
// directory.
func (p *Pipeline) Close() error {
	var err error
	if p.publisher != nil {
		err = multierr.Append(err, p.publisher.Close())
	}
	if p.store != nil {
		err = multierr.Append(err, p.store.Close())
	}
	if p.tempDir != "" {
		if rmErr := os.RemoveAll(p.tempDir); rmErr != nil {
			p.logger.Warn().Err(rmErr).Msg("failed to clean up temp directory")
		} else {
			p.logger.Debug().Str("temp_dir", p.tempDir).Msg("cleaned up temp directory")
		}
	}
	return err
}

// ValidateInput checks that path is a readable file. Very large files and
// unusual extensions are logged but accepted.
func ValidateInput(logger zerolog.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("input path cannot be empty")
	}
	if !util.FileExists(path) {
		return fmt.Errorf("video file not found: %s", path)
	}

	sizeMB, err := util.FileSizeMB(path)
	if err != nil {
		return fmt.Errorf("failed to stat input: %w", err)
	}
	if sizeMB > largeInputMB {
		logger.Warn().
			Float64("size_mb", sizeMB).
			Msg("large video file detected, processing may take considerable time")
	}
	if !util.HasExtension(path, videoExtensions...) {
		logger.Warn().Str("extension", filepath.Ext(path)).Msg("unusual video format")
	}

	logger.Info().Str("input", path).Float64("size_mb", sizeMB).Msg("input validation passed")
	return nil
}

// Analyze runs the full analysis pipeline on input video
func (p *Pipeline) Analyze(ctx context.Context, input string, opts AnalyzeOptions) (*Report, error) {
	start := time.Now()
	p.logger.Info().Str("input", input).Msg("starting goal detection pipeline")

	if err := ValidateInput(p.logger, input); err != nil {
		return nil, err
	}

	uploading := p.uploader != nil && !opts.NoUpload
	if uploading {
		if err := p.uploader.Verify(ctx); err != nil {
			return nil, err
		}
	}

	exec, err := ffmpeg.New(p.logger, p.config.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	// Stage 1: Extract video metadata
	video, err := exec.ProbeVideo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	p.logger.Info().
		Dur("duration", video.Duration).
		Int("width", video.Width).
		Int("height", video.Height).
		Float64("fps", video.FPS).
		Int("frames", video.FrameCount).
		Msg("video metadata extracted")

	// Stage 2: object detection feeding the goal detector
	yolo, err := vision.NewYOLO(p.logger, p.config.Vision)
	if err != nil {
		return nil, err
	}
	defer yolo.Close()

	frames, err := vision.NewVideoSource(ctx, p.logger, exec, yolo, video, p.config.Vision.MaxFrameWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to start decoding: %w", err)
	}
	defer frames.Close()

	var src detection.Source = frames
	if opts.DumpDetections != "" {
		w, err := detection.CreateCSV(opts.DumpDetections, video.FPS)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := w.Close(); err != nil {
				p.logger.Warn().Err(err).Msg("failed to write detections file")
			}
		}()
		src = detection.Tee(frames, w)
	}

	res, err := p.detector.Detect(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("goal detection failed: %w", err)
	}

	clipping := p.config.Highlights.Enabled && !opts.NoClips
	report := &Report{
		Source:       input,
		Result:       res,
		clipsWanted:  clipping,
		uploadWanted: uploading,
	}

	// Stage 3: highlight clips
	switch {
	case len(res.Events) == 0:
		p.logger.Warn().Msg("no goals detected in the video")
	case clipping:
		gen, err := highlights.NewGenerator(p.logger, exec, p.highlightsConfig())
		if err != nil {
			return nil, err
		}
		if err := p.clip(ctx, gen, video, report); err != nil {
			return nil, err
		}
	}

	// Stage 4: upload
	if uploading && len(report.Clips) > 0 {
		p.upload(ctx, report)
	}

	p.record(ctx, report)
	report.Elapsed = time.Since(start)
	p.logger.Info().
		Int("goals", len(res.Events)).
		Int("clips", len(report.Clips)).
		Int("uploaded", len(report.Uploaded)).
		Dur("elapsed", report.Elapsed).
		Msg("pipeline complete")
	return report, nil
}

// DetectFile runs goal detection over a detections CSV, then stores and
// publishes the result.
func (p *Pipeline) DetectFile(ctx context.Context, path string, info detection.StreamInfo) (*Report, error) {
	start := time.Now()
	src, err := detection.OpenCSV(path, info, p.logger)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	res, err := p.detector.Detect(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("goal detection failed: %w", err)
	}

	report := &Report{
		Source:  path,
		Result:  res,
		Skipped: src.Skipped(),
	}
	p.record(ctx, report)
	report.Elapsed = time.Since(start)
	return report, nil
}

func (p *Pipeline) highlightsConfig() highlights.Config {
	cfg := p.config.Highlights
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(p.tempDir, "clips")
	}
	return cfg
}

// clip fills the report's clips. Per clip failures become warnings; only a
// cancelled run is returned as an error.
func (p *Pipeline) clip(ctx context.Context, c Clipper, video *ffmpeg.VideoInfo, report *Report) error {
	res, err := c.Generate(ctx, video, report.Events())
	if res == nil {
		return fmt.Errorf("failed to create highlight clips: %w", err)
	}
	report.Clips = res.Clips
	report.Reel = res.Reel
	if err != nil {
		report.Warnings = append(report.Warnings, multierr.Errors(err)...)
	}
	if len(report.Clips) == 0 {
		p.logger.Error().Msg("failed to generate any highlight clips")
	}
	return nil
}

func (p *Pipeline) upload(ctx context.Context, report *Report) {
	files := lo.Map(report.Clips, func(c highlights.Clip, _ int) string { return c.Path })
	if report.Reel != "" {
		files = append(files, report.Reel)
	}
	keys, err := p.uploader.UploadAll(ctx, files)
	report.Uploaded = keys
	if err != nil {
		report.Warnings = append(report.Warnings, multierr.Errors(err)...)
	}
	if len(keys) == 0 {
		p.logger.Error().Msg("failed to upload clips")
	}
}

// record saves the run and publishes its goals. Failures are kept as
// warnings so a finished detection is still reported.
func (p *Pipeline) record(ctx context.Context, report *Report) {
	clips := lo.KeyBy(report.Clips, func(c highlights.Clip) int { return c.Goal.SequenceNumber })
	events := report.Events()

	run := &store.Run{
		Source:    report.Source,
		FPS:       report.Result.Info.FPS,
		Frames:    report.Result.Frames,
		Threshold: report.Result.Threshold,
		Events: lo.Map(events, func(ev goals.GoalEvent, _ int) store.Event {
			return store.Event{GoalEvent: ev, ClipPath: clips[ev.SequenceNumber].Path}
		}),
	}
	run.DurationSeconds = report.Result.Duration

	if p.store != nil {
		if err := p.store.SaveRun(ctx, run); err != nil {
			p.logger.Error().Err(err).Msg("failed to store run")
			report.Warnings = append(report.Warnings, err)
		} else {
			p.logger.Info().Str("run", run.ID).Msg("run stored")
		}
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	report.RunID = run.ID

	if p.publisher == nil || len(events) == 0 {
		return
	}
	var clipKeys []string
	if p.uploader != nil && len(report.Uploaded) > 0 {
		clipKeys = lo.Map(events, func(ev goals.GoalEvent, _ int) string {
			c, ok := clips[ev.SequenceNumber]
			if !ok {
				return ""
			}
			key := p.uploader.Key(c.Path)
			return lo.Ternary(lo.Contains(report.Uploaded, key), key, "")
		})
	}
	if err := p.publisher.PublishRun(ctx, run.ID, report.Source, events, clipKeys); err != nil {
		p.logger.Error().Err(err).Msg("failed to publish goals")
		report.Warnings = append(report.Warnings, err)
	}
}
