package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Result summarizes one pipeline run. Counters are partial when
// Success is false: they reflect the work done before the fatal stop.
type Result struct {
	Success bool   `json:"success"`
	Source  string `json:"source"`
	City    string `json:"city"`
	DryRun  bool   `json:"dryRun"`

	Processed         int64 `json:"processed"`
	Inserted          int64 `json:"inserted"`
	Updated           int64 `json:"updated"`
	Failed            int64 `json:"failed"`
	Rejected          int64 `json:"rejected"`
	SkippedDuplicates int64 `json:"skippedDuplicates"`
	VenuesCreated     int64 `json:"venuesCreated"`
	VenuesReused      int64 `json:"venuesReused"`
	Cached            int64 `json:"cached"`

	DurationMillis int64    `json:"durationMillis"`
	Errors         []string `json:"errors,omitempty"`
	ErrorMessage   string   `json:"errorMessage,omitempty"`
}

// String renders a one-line summary for logs.
func (r *Result) String() string {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	return fmt.Sprintf(
		"%s: processed=%d inserted=%d updated=%d failed=%d rejected=%d duplicates=%d venues=%d+%d cached=%d in %dms",
		status, r.Processed, r.Inserted, r.Updated, r.Failed, r.Rejected,
		r.SkippedDuplicates, r.VenuesCreated, r.VenuesReused, r.Cached,
		r.DurationMillis,
	)
}

// counters holds the per-run tallies. Per-event workers update them
// concurrently, so everything is atomic.
type counters struct {
	processed         atomic.Int64
	inserted          atomic.Int64
	updated           atomic.Int64
	failed            atomic.Int64
	rejected          atomic.Int64
	skippedDuplicates atomic.Int64
	venuesCreated     atomic.Int64
	venuesReused      atomic.Int64
	cached            atomic.Int64
}

func (c *counters) fill(r *Result) {
	r.Processed = c.processed.Load()
	r.Inserted = c.inserted.Load()
	r.Updated = c.updated.Load()
	r.Failed = c.failed.Load()
	r.Rejected = c.rejected.Load()
	r.SkippedDuplicates = c.skippedDuplicates.Load()
	r.VenuesCreated = c.venuesCreated.Load()
	r.VenuesReused = c.venuesReused.Load()
	r.Cached = c.cached.Load()
}

// errorList collects per-event error strings across workers.
type errorList struct {
	mu   sync.Mutex
	errs []string
}

func (l *errorList) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
}

func (l *errorList) slice() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.errs))
	copy(out, l.errs)
	return out
}
