package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
)

// FrameStream decodes a video into RGB frames through an ffmpeg pipe.
type FrameStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	width   int
	height  int
	buf     []byte
	index   int
	tail    *lineTail
	stderrC chan struct{}
	closed  bool
}

// ScaledSize returns the frame size after limiting the width to maxWidth,
// keeping the aspect ratio and even dimensions. maxWidth <= 0 keeps the size.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth || width <= 0 {
		return width, height
	}
	h := int(float64(height)*float64(maxWidth)/float64(width)+0.5) &^ 1
	if h < 2 {
		h = 2
	}
	return maxWidth &^ 1, h
}

// StreamFrames starts decoding input at width x height. Frames are read with
// Next; Close must be called to release the process.
func (e *Executor) StreamFrames(ctx context.Context, input string, width, height int) (*FrameStream, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	args := append(e.baseArgs(false),
		"-i", input,
		"-vf", NewFilterBuilder().Scale(width, height).Build(),
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting frame stream")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &FrameStream{
		cmd:     cmd,
		stdout:  stdout,
		width:   width,
		height:  height,
		buf:     make([]byte, width*height*3),
		tail:    newLineTail(tailLines),
		stderrC: make(chan struct{}),
	}
	go func() {
		defer close(s.stderrC)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.tail.add(scanner.Text())
		}
	}()
	return s, nil
}

// Size returns the decoded frame size.
func (s *FrameStream) Size() (int, int) {
	return s.width, s.height
}

// Next returns the next frame and its index, or io.EOF after the last one.
func (s *FrameStream) Next() (*image.RGBA, int, error) {
	if s.closed {
		return nil, 0, io.EOF
	}
	_, err := io.ReadFull(s.stdout, s.buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if werr := s.wait(); werr != nil {
			return nil, 0, werr
		}
		return nil, 0, io.EOF
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read frame %d: %w", s.index, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	rgbToRGBA(s.buf, img)
	idx := s.index
	s.index++
	return img, idx, nil
}

// Close stops the decoder.
func (s *FrameStream) Close() error {
	if s.closed {
		return nil
	}
	s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.stderrC
	_ = s.cmd.Wait()
	s.closed = true
	return nil
}

func (s *FrameStream) wait() error {
	<-s.stderrC
	err := s.cmd.Wait()
	s.closed = true
	if err != nil {
		return &ExitError{Err: err, Tail: s.tail.lines()}
	}
	return nil
}

// rgbToRGBA copies packed rgb24 pixels into dst.
func rgbToRGBA(src []byte, dst *image.RGBA) {
	n := len(src) / 3
	for i := 0; i < n; i++ {
		dst.Pix[i*4] = src[i*3]
		dst.Pix[i*4+1] = src[i*3+1]
		dst.Pix[i*4+2] = src[i*3+2]
		dst.Pix[i*4+3] = 0xff
	}
}
