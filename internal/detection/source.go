package detection

import (
	"context"
	"io"
)

// Source yields frames in increasing frame index order. Next returns io.EOF
// once the stream is exhausted. Frames without detections may be omitted.
type Source interface {
	Info() StreamInfo
	Next(ctx context.Context) (Frame, error)
}

// SliceSource serves frames held in memory.
type SliceSource struct {
	info   StreamInfo
	frames []Frame
	pos    int
}

// NewSliceSource returns a source over frames, served in the given order.
func NewSliceSource(info StreamInfo, frames []Frame) *SliceSource {
	return &SliceSource{info: info, frames: frames}
}

// Info implements Source.
func (s *SliceSource) Info() StreamInfo {
	return s.info
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

type teeSource struct {
	Source
	w *CSVWriter
}

// Tee returns a source that records every frame it yields to w.
func Tee(src Source, w *CSVWriter) Source {
	return &teeSource{Source: src, w: w}
}

func (t *teeSource) Next(ctx context.Context) (Frame, error) {
	f, err := t.Source.Next(ctx)
	if err != nil {
		return f, err
	}
	if err := t.w.WriteFrame(f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
