package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/goalcut/pkg/util"
)

// GenerateThumbnail creates a thumbnail image at a specific timestamp
func (e *Executor) GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, width int) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("generating thumbnail")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-frames:v", "1",
	}
	if vf := NewFilterBuilder().Scale(width, -2).Build(); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-q:v", "2", output)

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("thumbnail generation")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("thumbnail generation failed: %w", err)
	}
	return nil
}
