// EventFlow - Event ingestion, deduplication and caching
// Ingests raw event batches, resolves venues, and keeps the
// per-category day cache in sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	cityFlag      string
	sourceFlag    string
	batchSizeFlag int
	dryRunFlag    bool
	skipDedupFlag bool
	noCacheFlag   bool
	redisFlag     string
	verbose       bool

	// Watch flags
	debounceFlag string

	// Relink flags
	datesFlag []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eventflow",
	Short: "EventFlow - Ingest, deduplicate and cache city events",
	Long: `EventFlow ingests raw event batches from scrapers, AI search, and
official feeds, normalizes and deduplicates them, resolves venues to
stable identities, and keeps the per-category day cache in sync.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [input-file]",
	Short: "Ingest a JSON batch of raw events",
	Long: `Ingest a JSON file containing an array of raw event records.

Supports reading from stdin using "-" as the input path.

Examples:
  eventflow ingest events.json
  eventflow ingest events.json --city Wien --source scraper
  eventflow ingest events.json --dry-run
  eventflow ingest events.json --redis localhost:6379
  cat events.json | eventflow ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and ingest dropped JSON batches",
	Long: `Watch a drop directory for JSON batch files. Each file is ingested
once its writer goes quiet, then removed; files that fail to parse are
left in place.

Examples:
  eventflow watch /var/spool/eventflow
  eventflow watch ./drops --debounce 5s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var relinkCmd = &cobra.Command{
	Use:   "relink",
	Short: "Repair events persisted without a venue link",
	Long: `Find events that carry a venue name but no venue id, resolve each
venue, and link it. Safe to run repeatedly.`,
	RunE: runRelink,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&redisFlag, "redis", "", "Redis address for the cache tier (e.g., localhost:6379)")

	// Ingest command flags
	ingestCmd.Flags().StringVar(&cityFlag, "city", "", "Default city for records without one")
	ingestCmd.Flags().StringVar(&sourceFlag, "source", "", "Source tag for this batch (e.g., scraper, ai-search)")
	ingestCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 0, "Events per processing batch (0 = configured default)")
	ingestCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Walk the pipeline without writing anything")
	ingestCmd.Flags().BoolVar(&skipDedupFlag, "skip-dedup", false, "Skip the check against persisted events")
	ingestCmd.Flags().BoolVar(&noCacheFlag, "no-cache-sync", false, "Skip the cache write-back after each batch")

	// Watch command flags
	watchCmd.Flags().StringVar(&cityFlag, "city", "", "Default city for records without one")
	watchCmd.Flags().StringVar(&sourceFlag, "source", "", "Source tag for ingested batches")
	watchCmd.Flags().StringVar(&debounceFlag, "debounce", "", "Quiet period before a dropped file is ingested (e.g., 5s)")

	// Relink command flags
	relinkCmd.Flags().StringVar(&cityFlag, "city", "", "City to repair")
	relinkCmd.Flags().StringArrayVar(&datesFlag, "date", nil, "Date to repair (YYYY-MM-DD, repeatable)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(relinkCmd)
}
