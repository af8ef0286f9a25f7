// Package tui renders CLI output for ingestion runs.
// Simple, streaming, no complex TUI - just clean styled output.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/eventflow/eventflow/pkg/pipeline"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  EVENTFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Event ingestion, deduplication and caching"))
	fmt.Println()
}

// PrintResult prints the run summary after ingestion.
func PrintResult(res *pipeline.Result) {
	fmt.Println()
	if res.Success {
		if res.DryRun {
			fmt.Println(successStyle.Render("  ✓ DRY RUN COMPLETE") + mutedStyle.Render("  nothing was written"))
		} else {
			fmt.Println(successStyle.Render("  ✓ INGESTION COMPLETE"))
		}
	} else {
		fmt.Println(accentStyle.Render("  ✗ INGESTION FAILED"))
		if res.ErrorMessage != "" {
			fmt.Printf("  %s %s\n", mutedStyle.Render("Cause:"), res.ErrorMessage)
		}
	}
	fmt.Println()

	fmt.Printf("  %s %s\n", mutedStyle.Render("Processed:"), titleStyle.Render(fmt.Sprintf("%d", res.Processed)))
	fmt.Printf("  %s %d inserted, %d updated, %d failed\n",
		mutedStyle.Render("Writes:"), res.Inserted, res.Updated, res.Failed)
	fmt.Printf("  %s %d rejected, %d duplicates skipped\n",
		mutedStyle.Render("Dropped:"), res.Rejected, res.SkippedDuplicates)
	fmt.Printf("  %s %d created, %d reused\n",
		mutedStyle.Render("Venues:"), res.VenuesCreated, res.VenuesReused)
	if res.Cached > 0 {
		fmt.Printf("  %s %d entries written\n", mutedStyle.Render("Cache:"), res.Cached)
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(time.Duration(res.DurationMillis)*time.Millisecond)))

	if len(res.Errors) > 0 {
		fmt.Println()
		fmt.Println(mutedStyle.Render("  Event-level errors:"))
		for i, msg := range res.Errors {
			if i == 10 {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("  ... and %d more", len(res.Errors)-i)))
				break
			}
			fmt.Printf("  %s %s\n", accentStyle.Render("·"), msg)
		}
	}
	fmt.Println()
}

// ShowProgress creates a progress bar over the pipeline's batches.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// WatchProgress consumes pipeline progress events and advances the bar.
// Returns when the channel closes.
func WatchProgress(events <-chan pipeline.Progress, description string) {
	var bar *progressbar.ProgressBar
	for p := range events {
		switch p.Stage {
		case pipeline.StageBatch:
			if bar == nil {
				bar = ShowProgress(int64(p.BatchesTotal), description)
			}
			bar.Set(p.BatchesDone)
		case pipeline.StageDone:
			if bar != nil {
				bar.Finish()
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
