package goals

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/keagan/goalcut/internal/detection"
)

// ErrFrameOrder is returned when frame indices do not strictly increase.
var ErrFrameOrder = errors.New("frame indices out of order")

const progressEvery = 1000

// Result is the outcome of one detection run. Threshold is the peak height
// threshold computed from the smoothed series; Skipped counts malformed
// detections that were left out.
type Result struct {
	Info      detection.StreamInfo
	Frames    int
	Duration  float64
	Threshold float64
	Skipped   int
	Signals   []FrameSignal
	Smoothed  []SmoothedSample
	Peaks     []Peak
	Events    []GoalEvent
}

// Detector runs the goal detection pass.
type Detector struct {
	logger zerolog.Logger
	warn   zerolog.Logger
	config Config
}

// NewDetector validates cfg and returns a Detector.
func NewDetector(logger zerolog.Logger, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "goal-detector").Logger()
	return &Detector{
		logger: logger,
		warn:   logger.Sample(&zerolog.BurstSampler{Burst: 10, Period: time.Second}),
		config: cfg,
	}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// series accumulates the frame and smoothed signals of a forward pass and
// fills gaps in the frame numbering with empty frames.
type series struct {
	fps      float64
	smoother *Smoother
	signals  []FrameSignal
	smoothed []SmoothedSample
	next     int
}

func newSeries(window, fps float64, capacity int) *series {
	return &series{
		fps:      fps,
		smoother: NewSmoother(window),
		signals:  make([]FrameSignal, 0, capacity),
		smoothed: make([]SmoothedSample, 0, capacity),
	}
}

// advance checks that index follows the previous frame and fills any gap.
func (s *series) advance(index int) error {
	if index < 0 {
		return errors.Wrapf(ErrFrameOrder, "negative frame index %d", index)
	}
	if index < s.next {
		return errors.Wrapf(ErrFrameOrder, "frame %d follows frame %d", index, s.next-1)
	}
	s.fill(index)
	return nil
}

// fill appends empty frames up to, but excluding, index.
func (s *series) fill(index int) {
	for s.next < index {
		s.push(FrameSignal{FrameIndex: s.next, Timestamp: float64(s.next) / s.fps})
	}
}

func (s *series) push(sig FrameSignal) {
	s.signals = append(s.signals, sig)
	s.smoothed = append(s.smoothed, SmoothedSample{
		FrameIndex: sig.FrameIndex,
		Timestamp:  sig.Timestamp,
		Value:      s.smoother.Push(sig.Timestamp, sig.Confidence),
	})
	s.next = sig.FrameIndex + 1
}

// Detect consumes src to the end and returns the goal events it contains.
// Frames missing from the source count as frames without detections.
func (d *Detector) Detect(ctx context.Context, src detection.Source) (*Result, error) {
	info := src.Info()
	if err := info.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid stream info")
	}

	d.logger.Info().
		Float64("fps", info.FPS).
		Float64("width", info.Width).
		Float64("height", info.Height).
		Int("frames", info.FrameCount).
		Msg("starting goal detection")

	extractor := NewExtractor(d.config, info.Width, info.Height)
	s := newSeries(d.config.SmoothingWindowSeconds, info.FPS, info.FrameCount)
	skipped := 0
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read frame")
		}
		if err := s.advance(frame.Index); err != nil {
			return nil, err
		}

		sig, bad := extractor.Extract(frame.Index, info.Timestamp(frame.Index), frame.Detections)
		for _, e := range bad {
			d.warn.Warn().Err(e).Int("frame", frame.Index).Msg("skipping malformed detection")
		}
		skipped += len(bad)
		s.push(sig)

		if s.next%progressEvery == 0 {
			d.logger.Debug().
				Int("frame", frame.Index).
				Int("total", info.FrameCount).
				Dur("elapsed", time.Since(start)).
				Msg("processed frames")
		}
	}

	s.fill(info.FrameCount)

	res := d.finish(s)
	res.Info = info
	res.Skipped = skipped
	return res, nil
}

// DetectSignals runs peak extraction and ranking over a precomputed signal
// series, smoothing it first. Frame indices must strictly increase; gaps are
// filled with empty frames at the given frame rate.
func (d *Detector) DetectSignals(signals []FrameSignal, fps float64) (*Result, error) {
	if !(fps > 0) {
		return nil, errors.Errorf("frame rate must be positive, got %v", fps)
	}
	s := newSeries(d.config.SmoothingWindowSeconds, fps, len(signals))
	for _, sig := range signals {
		if err := s.advance(sig.FrameIndex); err != nil {
			return nil, err
		}
		s.push(sig)
	}
	res := d.finish(s)
	res.Info.FPS = fps
	return res, nil
}

func (d *Detector) finish(s *series) *Result {
	peaks, threshold := FindPeaks(s.smoothed, PeakOptions{
		HeightStdMultiplier: d.config.HeightStdMultiplier,
		MinProminence:       d.config.MinProminence,
		MinDistance:         d.config.MinPeakDistanceSeconds,
	})
	events := Rank(peaks, d.config.MaxGoals)

	res := &Result{
		Frames:    len(s.signals),
		Duration:  float64(len(s.signals)) / s.fps,
		Threshold: threshold,
		Signals:   s.signals,
		Smoothed:  s.smoothed,
		Peaks:     peaks,
		Events:    events,
	}

	d.logger.Info().
		Int("frames", res.Frames).
		Float64("threshold", threshold).
		Int("peaks", len(peaks)).
		Int("goals", len(events)).
		Msg("goal detection complete")
	for _, e := range events {
		d.logger.Debug().
			Int("goal", e.SequenceNumber).
			Float64("timestamp", e.Timestamp).
			Float64("confidence", e.Confidence).
			Msg("goal event")
	}
	return res
}
