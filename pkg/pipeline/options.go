package pipeline

import "time"

// Default run parameters.
const (
	DefaultBatchSize = 50
	DefaultCity      = "Wien"
)

// Options controls one Run invocation. The zero value is usable: it
// means a live (non-dry) run for DefaultCity with deduplication and
// cache sync on.
type Options struct {
	// Source tags the records of this run, e.g. "ai-search" or
	// "scraper". Stored on every event and unioned on merge.
	Source string

	// City fills records without an explicit city and scopes duplicate
	// detection. Empty means DefaultCity.
	City string

	// BatchSize is the number of events per processing batch. Zero or
	// negative means DefaultBatchSize.
	BatchSize int

	// DryRun walks the full pipeline without writing to the repository
	// or the cache. Venue ids become synthetic placeholders.
	DryRun bool

	// SkipDeduplication disables the check against persisted events.
	// Batch-internal duplicates are still collapsed.
	SkipDeduplication bool

	// SkipCacheSync disables the day-bucket merge and cache write-back
	// after each batch. The default (false) keeps the cache in sync.
	SkipCacheSync bool

	// Debug logs each rejected record with its reason.
	Debug bool
}

func (o Options) withDefaults() Options {
	if o.City == "" {
		o.City = DefaultCity
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Config holds the orchestrator-level tuning shared by all runs.
type Config struct {
	// Concurrency is the worker count for per-event processing within
	// a batch.
	Concurrency int

	// BatchPause is the idle time between consecutive batches.
	BatchPause time.Duration

	// Retry governs backoff on retryable external calls.
	Retry RetryConfig

	// ThrottleMax and ThrottleInterval bound venue-resolution calls to
	// ThrottleMax per interval. Zero disables throttling.
	ThrottleMax      int
	ThrottleInterval time.Duration

	// MinCacheTTL is the floor for derived cache lifetimes, so entries
	// written moments before an event starts are still servable.
	MinCacheTTL time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:      4,
		BatchPause:       200 * time.Millisecond,
		Retry:            DefaultRetryConfig(),
		ThrottleMax:      0,
		ThrottleInterval: time.Second,
		MinCacheTTL:      5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = time.Second
	}
	if c.MinCacheTTL <= 0 {
		c.MinCacheTTL = 5 * time.Minute
	}
	c.Retry = c.Retry.withDefaults()
	return c
}
