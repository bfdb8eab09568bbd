package vision

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/goalcut/internal/detection"
	"github.com/keagan/goalcut/internal/ffmpeg"
)

const logEvery = 100

type frameReader interface {
	Next() (*image.RGBA, int, error)
	Close() error
}

// VideoSource decodes a video with ffmpeg and runs a FrameDetector on every
// frame, yielding detections in frame order.
type VideoSource struct {
	logger   zerolog.Logger
	frames   frameReader
	detector FrameDetector
	info     detection.StreamInfo
	start    time.Time
	decoded  int
}

// NewVideoSource starts decoding video, downscaled to at most maxWidth pixels
// wide.
func NewVideoSource(ctx context.Context, logger zerolog.Logger, exec *ffmpeg.Executor, detector FrameDetector, video *ffmpeg.VideoInfo, maxWidth int) (*VideoSource, error) {
	w, h := ffmpeg.ScaledSize(video.Width, video.Height, maxWidth)
	stream, err := exec.StreamFrames(ctx, video.FilePath, w, h)
	if err != nil {
		return nil, err
	}

	if w != video.Width {
		logger.Info().
			Int("width", video.Width).
			Int("scaled_width", w).
			Int("scaled_height", h).
			Msg("downscaling frames for detection")
	}

	info := detection.StreamInfo{
		FPS:        video.FPS,
		Width:      float64(w),
		Height:     float64(h),
		FrameCount: video.FrameCount,
	}
	return newVideoSource(logger, stream, detector, info), nil
}

func newVideoSource(logger zerolog.Logger, frames frameReader, detector FrameDetector, info detection.StreamInfo) *VideoSource {
	return &VideoSource{
		logger:   logger.With().Str("component", "video-source").Logger(),
		frames:   frames,
		detector: detector,
		info:     info,
		start:    time.Now(),
	}
}

// Info implements detection.Source.
func (s *VideoSource) Info() detection.StreamInfo {
	return s.info
}

// Next implements detection.Source.
func (s *VideoSource) Next(ctx context.Context) (detection.Frame, error) {
	if err := ctx.Err(); err != nil {
		return detection.Frame{}, err
	}

	img, idx, err := s.frames.Next()
	if err == io.EOF {
		s.logger.Info().
			Int("frames", s.decoded).
			Dur("elapsed", time.Since(s.start)).
			Msg("video decoding complete")
		return detection.Frame{}, io.EOF
	}
	if err != nil {
		return detection.Frame{}, err
	}
	s.decoded++

	dets, err := s.detector.Detect(img)
	if err != nil {
		return detection.Frame{}, err
	}
	ts := s.info.Timestamp(idx)
	for i := range dets {
		dets[i].FrameIndex = idx
		dets[i].Timestamp = ts
	}

	if s.decoded%logEvery == 0 {
		s.logger.Info().
			Int("frame", s.decoded).
			Int("total", s.info.FrameCount).
			Float64("fps", float64(s.decoded)/time.Since(s.start).Seconds()).
			Msg("processed frames")
	}
	return detection.Frame{Index: idx, Detections: dets}, nil
}

// Close stops decoding.
func (s *VideoSource) Close() error {
	return s.frames.Close()
}
