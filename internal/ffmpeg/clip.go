package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/keagan/goalcut/pkg/util"
)

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start  time.Duration
	End    time.Duration
	Output string
	// VideoFilter is applied to the cut, with t starting at zero at Start.
	VideoFilter  string
	VideoCodec   string
	AudioCodec   string
	CRF          int // Quality (0-51, lower = better)
	Preset       string
	ProgressFunc ProgressFunc
}

// clipArgs builds the ffmpeg arguments for a re-encoded cut. Seeking before
// the input keeps the cut fast and makes filter timestamps clip relative.
func clipArgs(input string, opts ClipOptions) ([]string, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Start < 0 {
		return nil, fmt.Errorf("invalid clip start %v", opts.Start)
	}
	duration := opts.End - opts.Start
	if duration <= 0 {
		return nil, fmt.Errorf("invalid clip duration: end must be after start")
	}

	args := []string{
		"-ss", util.FormatDuration(opts.Start),
		"-i", input,
		"-t", util.FormatDuration(duration),
	}
	if opts.VideoFilter != "" {
		args = append(args, "-vf", opts.VideoFilter)
	}
	return append(args, encodeArgs(opts.VideoCodec, opts.AudioCodec, opts.CRF, opts.Preset, opts.Output)...), nil
}

func encodeArgs(videoCodec, audioCodec string, crf int, preset, output string) []string {
	if videoCodec == "" {
		videoCodec = DefaultVideoCodec
	}
	if audioCodec == "" {
		audioCodec = DefaultAudioCodec
	}
	if crf == 0 {
		crf = DefaultCRF
	}
	if preset == "" {
		preset = DefaultPreset
	}
	return []string{
		"-c:v", videoCodec,
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", audioCodec,
		"-movflags", "+faststart",
		output,
	}
}

// ExtractClip cuts and re-encodes a segment from a video
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	args, err := clipArgs(input, opts)
	if err != nil {
		return err
	}

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", opts.End-opts.Start).
		Bool("filtered", opts.VideoFilter != "").
		Msg("extracting clip")

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip extraction complete")
	return nil
}

// Compress re-encodes input into output with the given quality settings.
func (e *Executor) Compress(ctx context.Context, input, output string, crf int, preset string) error {
	if input == "" || output == "" {
		return fmt.Errorf("input and output paths are required")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Int("crf", crf).
		Str("preset", preset).
		Msg("compressing video")

	args := append([]string{"-i", input}, encodeArgs("", "", crf, preset, output)...)
	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("compression")
		},
	}
	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	return nil
}
