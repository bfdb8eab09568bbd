package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/goalcut/internal/api"
	"github.com/keagan/goalcut/internal/config"
	"github.com/keagan/goalcut/internal/detection"
	"github.com/keagan/goalcut/internal/logging"
	"github.com/keagan/goalcut/internal/pipeline"
	"github.com/keagan/goalcut/internal/store"
	"github.com/keagan/goalcut/internal/upload"
	"github.com/keagan/goalcut/pkg/util"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	verbose bool
	logFile string

	logCloser io.Closer

	analyzeOpts pipeline.AnalyzeOptions
	streamInfo  detection.StreamInfo
	runsLimit   int
	serveAddr   string
)

// errFailed marks a run that finished without the expected output. The
// summary has already been printed, so main only sets the exit code.
var errFailed = errors.New("pipeline failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "goalcut",
	Short: "goalcut - football goal detection and highlight clips",
	Long:  "Detects goal moments in football match footage and cuts a highlight clip around each one.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCloser = logging.Init(verbose, logFile)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./goalcut.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotating file")

	analyzeCmd.Flags().BoolVar(&analyzeOpts.NoUpload, "no-upload", false, "skip S3 upload")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.NoClips, "no-clips", false, "only detect goals, do not cut clips")
	analyzeCmd.Flags().StringVar(&analyzeOpts.DumpDetections, "dump-detections", "", "write per-frame detections to this CSV file")

	detectCmd.Flags().Float64Var(&streamInfo.FPS, "fps", 25, "frame rate of the source video")
	detectCmd.Flags().Float64Var(&streamInfo.Width, "width", 1920, "frame width of the box coordinates (1 for normalized boxes)")
	detectCmd.Flags().Float64Var(&streamInfo.Height, "height", 1080, "frame height of the box coordinates (1 for normalized boxes)")
	detectCmd.Flags().IntVar(&streamInfo.FrameCount, "frames", 0, "total frames in the video, 0 if unknown")

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list, 0 for all")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(uploadsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Detect goals in a video and cut highlight clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		report, err := pipe.Analyze(cmd.Context(), args[0], analyzeOpts)
		if err != nil {
			log.Error().Err(err).Msg("pipeline failed")
			return err
		}
		return finish(cmd, report)
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect [detections csv]",
	Short: "Detect goals from precomputed per-frame detections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		// Clips need the source video, which a detections file does not carry.
		cfg.Highlights.Enabled = false
		cfg.Upload.Enabled = false

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		report, err := pipe.DetectFile(cmd.Context(), args[0], streamInfo)
		if err != nil {
			log.Error().Err(err).Msg("detection failed")
			return err
		}
		return finish(cmd, report)
	},
}

func finish(cmd *cobra.Command, report *pipeline.Report) error {
	pipeline.PrintSummary(cmd.OutOrStdout(), report)
	log.Info().
		Str("run", report.RunID).
		Int("goals", len(report.Events())).
		Dur("elapsed", report.Elapsed).
		Msg("run complete")
	if !report.Success() {
		return errFailed
	}
	return nil
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored detection runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Created", "Source", "Duration", "Goals"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.ID,
				r.CreatedAt.Local().Format(time.DateTime),
				r.Source,
				util.FormatClock(r.DurationSeconds),
				r.Goals,
			})
		}
		t.Render()
		return nil
	},
}

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List highlight clips stored in the S3 bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if cfg.Upload.Bucket == "" {
			return fmt.Errorf("no bucket configured, set upload.bucket or GOALCUT_S3_BUCKET")
		}
		up, err := upload.NewS3Uploader(log.Logger, cfg.Upload)
		if err != nil {
			return err
		}

		objects, err := up.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(objects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "bucket is empty")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Key", "Size (MB)", "Modified"})
		for _, o := range objects {
			t.AppendRow(table.Row{
				o.Key,
				fmt.Sprintf("%.2f", float64(o.SizeBytes)/(1024*1024)),
				o.LastModified.Local().Format(time.DateTime),
			})
		}
		t.Render()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.API.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(st, logging.WithComponent("api")),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		log.Info().Msg("shutting down api")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("no database configured, set db_path or GOALCUT_DB_PATH")
	}
	return store.Open(cfg.DBPath)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "goalcut.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		log.Info().Str("path", path).Msg("wrote default configuration")
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			log.Warn().Msg("config files are read as YAML regardless of extension")
		}
		return nil
	},
}
