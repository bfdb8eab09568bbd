package highlights

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/goalcut/internal/ffmpeg"
	"github.com/keagan/goalcut/internal/goals"
	"github.com/keagan/goalcut/pkg/util"
)

// Cutter is the subset of ffmpeg.Executor used to produce highlights.
type Cutter interface {
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
	Compress(ctx context.Context, input, output string, crf int, preset string) error
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
	GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, width int) error
}

// Result holds the clips that were written. Failed counts goals whose clip
// could not be produced.
type Result struct {
	Clips  []Clip
	Reel   string
	Failed int
}

// Generator cuts highlight clips with a bounded worker pool.
type Generator struct {
	logger zerolog.Logger
	cutter Cutter
	config Config
}

// NewGenerator validates cfg and returns a Generator.
func NewGenerator(logger zerolog.Logger, cutter Cutter, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("highlights output directory is required")
	}
	return &Generator{
		logger: logger.With().Str("component", "highlights").Logger(),
		cutter: cutter,
		config: cfg,
	}, nil
}

// Generate writes one clip per event into the output directory. Clips come
// back in event order. A failed clip does not stop the others; all failures
// are returned together alongside the clips that succeeded.
func (g *Generator) Generate(ctx context.Context, video *ffmpeg.VideoInfo, events []goals.GoalEvent) (*Result, error) {
	res := &Result{}
	if len(events) == 0 {
		return res, nil
	}
	if err := util.EnsureDir(g.config.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	g.logger.Info().
		Int("goals", len(events)).
		Str("output_dir", g.config.OutputDir).
		Int("workers", g.config.Workers).
		Msg("creating highlight clips")

	clips := make([]*Clip, len(events))
	errs := make([]error, len(events))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Workers)
	for i, ev := range events {
		i, ev := i, ev
		eg.Go(func() error {
			clip, err := g.cut(egCtx, video, ev)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				g.logger.Error().Err(err).
					Int("goal", ev.SequenceNumber).
					Float64("timestamp", ev.Timestamp).
					Bool("ffmpeg", ffmpeg.IsExitError(err)).
					Msg("failed to create highlight clip")
				errs[i] = fmt.Errorf("goal %d at %.2fs: %w", ev.SequenceNumber, ev.Timestamp, err)
				return nil
			}
			clips[i] = clip
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, c := range clips {
		if c == nil {
			res.Failed++
			continue
		}
		g.logger.Info().
			Str("clip", filepath.Base(c.Path)).
			Int("index", i+1).
			Int("total", len(events)).
			Msg("created highlight clip")
		res.Clips = append(res.Clips, *c)
	}

	err := multierr.Combine(errs...)
	if g.config.Reel && len(res.Clips) > 0 {
		reel, reelErr := g.reel(ctx, res.Clips)
		if reelErr != nil {
			err = multierr.Append(err, reelErr)
		} else {
			res.Reel = reel
		}
	}
	return res, err
}

// cut extracts, marks and sizes a single clip.
func (g *Generator) cut(ctx context.Context, video *ffmpeg.VideoInfo, ev goals.GoalEvent) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, end := Window(ev.Timestamp, g.config.PreSeconds, g.config.PostSeconds, video.DurationSeconds())
	if end <= start {
		return nil, fmt.Errorf("empty clip window [%.2f, %.2f]", start, end)
	}
	path := filepath.Join(g.config.OutputDir, FileName(ev))

	g.logger.Debug().
		Float64("start", start).
		Float64("end", end).
		Str("output", path).
		Msg("extracting clip")

	opts := ffmpeg.ClipOptions{
		Start:       util.Seconds(start),
		End:         util.Seconds(end),
		Output:      path,
		VideoFilter: g.markerFilter(ev.Timestamp - start),
	}
	if err := g.cutter.ExtractClip(ctx, video.FilePath, opts); err != nil {
		return nil, err
	}

	clip := &Clip{
		Goal:     ev,
		Start:    opts.Start,
		End:      opts.End,
		Duration: opts.End - opts.Start,
		Path:     path,
	}
	if err := g.fitSize(ctx, clip); err != nil {
		return nil, err
	}

	if g.config.Thumbnails {
		thumb := thumbnailPath(path)
		if err := g.cutter.GenerateThumbnail(ctx, video.FilePath, thumb, util.Seconds(ev.Timestamp), g.config.ThumbWidth); err != nil {
			g.logger.Warn().Err(err).Str("clip", path).Msg("could not create thumbnail")
		} else {
			clip.Thumbnail = thumb
		}
	}
	return clip, nil
}

// markerFilter shows the marker text around rel, the goal moment in clip
// time.
func (g *Generator) markerFilter(rel float64) string {
	if g.config.MarkerText == "" {
		return ""
	}
	return ffmpeg.NewFilterBuilder().
		DrawText(ffmpeg.TextOptions{
			Text:     g.config.MarkerText,
			FontSize: 50,
			Color:    "red",
			From:     math.Max(0, rel-g.config.MarkerSeconds),
			To:       rel + g.config.MarkerSeconds,
		}).
		Build()
}

// fitSize re-encodes clips over the size limit and replaces them in place.
func (g *Generator) fitSize(ctx context.Context, clip *Clip) error {
	size, err := util.FileSizeMB(clip.Path)
	if err != nil {
		return fmt.Errorf("failed to stat clip: %w", err)
	}
	clip.SizeMB = size
	if g.config.MaxSizeMB <= 0 || size <= g.config.MaxSizeMB {
		return nil
	}

	g.logger.Info().
		Str("clip", clip.Path).
		Float64("size_mb", size).
		Msg("clip exceeds size limit, compressing")

	compressed := strings.TrimSuffix(clip.Path, filepath.Ext(clip.Path)) + "_compressed.mp4"
	if err := g.cutter.Compress(ctx, clip.Path, compressed, ffmpeg.CompressCRF, ffmpeg.CompressPreset); err != nil {
		util.CleanupFiles(compressed)
		return err
	}
	if err := os.Rename(compressed, clip.Path); err != nil {
		util.CleanupFiles(compressed)
		return fmt.Errorf("failed to replace clip: %w", err)
	}

	if size, err = util.FileSizeMB(clip.Path); err == nil {
		clip.SizeMB = size
	}
	clip.Compressed = true
	g.logger.Info().Str("clip", clip.Path).Float64("size_mb", clip.SizeMB).Msg("compressed clip")
	return nil
}

func (g *Generator) reel(ctx context.Context, clips []Clip) (string, error) {
	inputs := make([]string, len(clips))
	for i, c := range clips {
		inputs[i] = c.Path
	}
	out := filepath.Join(g.config.OutputDir, g.config.ReelName)
	if err := g.cutter.Concat(ctx, ffmpeg.ConcatOptions{Inputs: inputs, Output: out}); err != nil {
		return "", fmt.Errorf("highlight reel: %w", err)
	}
	g.logger.Info().Str("reel", out).Int("clips", len(inputs)).Msg("created highlight reel")
	return out, nil
}
