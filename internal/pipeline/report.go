package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/keagan/goalcut/pkg/util"
)

const rule = 60

// PrintSummary writes a human readable summary of report to w.
func PrintSummary(w io.Writer, report *Report) {
	bar := strings.Repeat("=", rule)
	fmt.Fprintf(w, "\n%s\nFOOTBALL GOAL DETECTION RESULTS\n%s\n", bar, bar)
	fmt.Fprintf(w, "Input: %s\n", report.Source)
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	}
	if res := report.Result; res != nil {
		fmt.Fprintf(w, "Frames: %d (%.2fs), threshold %.4f\n", res.Frames, res.Duration, res.Threshold)
		if skipped := res.Skipped + report.Skipped; skipped > 0 {
			fmt.Fprintf(w, "Skipped detections: %d\n", skipped)
		}
	}

	events := report.Events()
	fmt.Fprintf(w, "Goals Detected: %d\n", len(events))
	if len(events) > 0 {
		fmt.Fprintln(w, "\nGoal Timestamps:")
		for _, ev := range events {
			fmt.Fprintf(w, "  Goal %d: %s (%.2fs)\n", ev.SequenceNumber, util.FormatClock(ev.Timestamp), ev.Timestamp)
		}
	}

	if report.clipsWanted || len(report.Clips) > 0 {
		fmt.Fprintf(w, "\nHighlight Clips Generated: %d\n", len(report.Clips))
		if len(report.Clips) > 0 {
			fmt.Fprintln(w, clipTable(report))
		}
		if report.Reel != "" {
			fmt.Fprintf(w, "Highlight reel: %s\n", filepath.Base(report.Reel))
		}
	}

	if report.uploadWanted {
		fmt.Fprintf(w, "\nFiles Uploaded to S3: %d\n", len(report.Uploaded))
		for _, key := range report.Uploaded {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings: %d\n", len(report.Warnings))
		for _, err := range report.Warnings {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}

	status := lo.Ternary(report.Success(), "SUCCESS", "FAILED")
	fmt.Fprintf(w, "\nPipeline Status: %s\n%s\n", status, bar)
}

func clipTable(report *Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Goal", "Clip", "Window", "Size (MB)", "Compressed"})
	for _, c := range report.Clips {
		t.AppendRow(table.Row{
			c.Goal.SequenceNumber,
			filepath.Base(c.Path),
			fmt.Sprintf("%s - %s", util.FormatClock(c.Start.Seconds()), util.FormatClock(c.End.Seconds())),
			fmt.Sprintf("%.2f", c.SizeMB),
			lo.Ternary(c.Compressed, "yes", ""),
		})
	}
	return t.Render()
}
