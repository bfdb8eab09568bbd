package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// tailLines is the number of trailing ffmpeg log lines kept for error reports.
const tailLines = 8

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

// baseArgs are prepended to every ffmpeg invocation.
func (e *Executor) baseArgs(progress bool) []string {
	args := []string{"-y", "-hide_banner", "-nostdin", "-nostats", "-loglevel", "info"}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	if progress {
		args = append(args, "-progress", "pipe:2")
	}
	return args
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := append(e.baseArgs(true), opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newLineTail(tailLines)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		streamProgress(stderr, opts.ProgressHandler, func(line string) {
			tail.add(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ExitError{Err: err, Tail: tail.lines()}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// ExitError is returned when ffmpeg exits unsuccessfully. Tail holds the last
// lines ffmpeg logged.
type ExitError struct {
	Err  error
	Tail []string
}

func (e *ExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg execution failed: %v: %s", e.Err, e.Tail[len(e.Tail)-1])
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// IsExitError reports whether err came from a failed ffmpeg run.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// streamProgress reads ffmpeg's stderr, forwarding every line to logLine and
// every completed progress block to handler.
func streamProgress(r io.Reader, handler ProgressFunc, logLine func(string)) {
	scanner := bufio.NewScanner(r)
	progress := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		if logLine != nil {
			logLine(line)
		}
		if parseProgressLine(line, progress) {
			if handler != nil && progress.Frame > 0 {
				handler(progress)
			}
			progress = &Progress{}
		}
	}
}

// parseProgressLine applies one "key=value" line of ffmpeg -progress output
// to p. It returns true when the line closes a progress block.
func parseProgressLine(line string, p *Progress) bool {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)

	switch strings.TrimSpace(key) {
	case "frame":
		if n, err := strconv.Atoi(value); err == nil {
			p.Frame = n
		}
	case "fps":
		if fps, err := strconv.ParseFloat(value, 64); err == nil {
			p.FPS = fps
		}
	case "bitrate":
		p.Bitrate = value
	case "out_time":
		p.Time = value
	case "out_time_us", "out_time_ms":
		// both report microseconds
		if us, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.OutTimeSeconds = float64(us) / 1e6
		}
	case "speed":
		p.Speed = value
	case "progress":
		p.Done = value == "end"
		return true
	}
	return false
}

type lineTail struct {
	mu  sync.Mutex
	max int
	buf []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	// skip blank lines and -progress key=value pairs
	if line == "" || (strings.Contains(line, "=") && !strings.Contains(line, " ")) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.buf))
	copy(out, t.buf)
	return out
}
