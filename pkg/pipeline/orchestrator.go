// Package pipeline orchestrates event ingestion end to end: normalize,
// deduplicate, then per batch resolve venues, persist, and sync the
// day-bucket cache. One event failing never aborts the run; only an
// unreachable persistence layer does.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventflow/eventflow/internal/model"
	"github.com/eventflow/eventflow/pkg/cache"
	"github.com/eventflow/eventflow/pkg/daybucket"
	"github.com/eventflow/eventflow/pkg/dedup"
	eferrors "github.com/eventflow/eventflow/pkg/errors"
	"github.com/eventflow/eventflow/pkg/flow"
	"github.com/eventflow/eventflow/pkg/normalize"
	"github.com/eventflow/eventflow/pkg/venue"
)

// Orchestrator runs the ingestion pipeline. Construct once, reuse for
// many Run calls; all per-run state lives on the stack of Run.
type Orchestrator struct {
	cfg     Config
	events  EventRepository
	venues  venue.Repository
	store   cache.Store
	buckets *daybucket.Engine

	deduper  *dedup.Deduplicator
	pool     *flow.WorkerPool
	throttle *flow.Throttle

	resolver    *venue.Resolver
	dryResolver *venue.Resolver

	logger   *slog.Logger
	tracer   trace.Tracer
	progress chan<- Progress

	closeOnce sync.Once
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCache attaches the cache tier synced after each batch. Without
// it, cache sync is silently skipped.
func WithCache(s cache.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = s }
}

// WithDayBuckets overrides the default in-process day-bucket engine.
func WithDayBuckets(e *daybucket.Engine) OrchestratorOption {
	return func(o *Orchestrator) { o.buckets = e }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer enables tracing of runs and stages.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithProgress attaches a progress channel. Sends never block; size the
// channel for the granularity you want to observe.
func WithProgress(ch chan<- Progress) OrchestratorOption {
	return func(o *Orchestrator) { o.progress = ch }
}

// NewOrchestrator wires the pipeline over an event repository and a
// venue repository.
func NewOrchestrator(cfg Config, events EventRepository, venues venue.Repository, opts ...OrchestratorOption) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:         cfg,
		events:      events,
		venues:      venues,
		buckets:     daybucket.NewEngine(),
		deduper:     dedup.New(),
		pool:        flow.NewWorkerPool(cfg.Concurrency),
		throttle:    flow.NewThrottle(cfg.ThrottleMax, cfg.ThrottleInterval),
		resolver:    venue.NewResolver(venues),
		dryResolver: venue.NewResolver(venues, venue.DryRun()),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close releases the worker pool. The orchestrator is unusable after.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(o.pool.Close)
}

// DedupStats exposes cumulative duplicate-detection statistics.
func (o *Orchestrator) DedupStats() dedup.Stats {
	return o.deduper.Stats()
}

// Run executes the full pipeline over raws and always returns a
// Result, never an error: per-event problems are counted and listed,
// and only a fatal condition flips Success to false.
func (o *Orchestrator) Run(ctx context.Context, raws []model.RawEvent, opts Options) *Result {
	opts = opts.withDefaults()
	start := time.Now()

	result := &Result{Source: opts.Source, City: opts.City, DryRun: opts.DryRun}
	tally := &counters{}
	errs := &errorList{}

	ctx, end := o.startSpan(ctx, "pipeline.run",
		attribute.String("source", opts.Source),
		attribute.String("city", opts.City),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Int("raw_events", len(raws)),
	)
	defer end()

	finalize := func(ok bool) *Result {
		tally.fill(result)
		result.Errors = errs.slice()
		result.Success = ok
		result.DurationMillis = time.Since(start).Milliseconds()
		o.emitProgress(Progress{Stage: StageDone, Processed: result.Processed, Failed: result.Failed})
		o.logger.Info("pipeline run finished", "source", opts.Source, "summary", result.String())
		return result
	}

	// Persistence must answer before any work is worth doing.
	if !opts.DryRun {
		if err := o.events.Ping(ctx); err != nil {
			result.ErrorMessage = eferrors.PersistenceDown(err).Error()
			o.logger.Error("pipeline aborted, persistence unreachable", "error", err)
			return finalize(false)
		}
	}

	events := o.normalizeStage(ctx, raws, opts, tally)
	events = o.dedupStage(ctx, events, opts, tally)

	batches := splitBatches(events, opts.BatchSize)
	for i, batch := range batches {
		stored, fatal := o.processBatch(ctx, batch, opts, tally, errs)
		if fatal != nil {
			result.ErrorMessage = fatal.Error()
			return finalize(false)
		}

		// Only events that actually persisted reach the cache; a
		// failed upsert must not be servable from a day entry.
		if !opts.DryRun && !opts.SkipCacheSync {
			o.syncCache(ctx, opts.City, stored, tally)
		}

		o.emitProgress(Progress{
			Stage:        StageBatch,
			BatchesDone:  i + 1,
			BatchesTotal: len(batches),
			Processed:    tally.processed.Load(),
			Failed:       tally.failed.Load(),
		})

		if i < len(batches)-1 && o.cfg.BatchPause > 0 {
			select {
			case <-time.After(o.cfg.BatchPause):
			case <-ctx.Done():
				result.ErrorMessage = ctx.Err().Error()
				return finalize(false)
			}
		}
	}

	if !opts.DryRun {
		o.postLinkStage(ctx, opts.City, dedup.Dates(events))
	}

	return finalize(true)
}

// normalizeStage validates the raw records, tagging each survivor with
// the run source.
func (o *Orchestrator) normalizeStage(ctx context.Context, raws []model.RawEvent, opts Options, tally *counters) []model.EventRecord {
	_, end := o.startSpan(ctx, "pipeline.normalize", attribute.Int("raw_events", len(raws)))
	defer end()

	events, rejections := normalize.New(opts.City).NormalizeBatch(raws)
	tally.rejected.Store(int64(len(rejections)))

	if opts.Debug {
		for _, rej := range rejections {
			o.logger.Debug("record rejected",
				"reason", string(rej.Reason),
				"title", rej.Raw.Title,
				"venue", rej.Raw.VenueName)
		}
	}

	if opts.Source != "" {
		for i := range events {
			events[i].Source = model.UnionSources(events[i].Source, opts.Source)
		}
	}

	o.emitProgress(Progress{Stage: StageNormalize})
	return events
}

// dedupStage collapses batch-internal duplicates and, unless disabled,
// drops events already persisted for the same dates. A failed lookup of
// persisted candidates degrades to batch-internal deduplication only.
func (o *Orchestrator) dedupStage(ctx context.Context, events []model.EventRecord, opts Options, tally *counters) []model.EventRecord {
	if len(events) == 0 {
		return events
	}
	_, end := o.startSpan(ctx, "pipeline.deduplicate", attribute.Int("events", len(events)))
	defer end()

	if opts.SkipDeduplication || opts.DryRun {
		collapsed := dedup.CollapseBatch(events)
		tally.skippedDuplicates.Add(int64(len(events) - len(collapsed)))
		o.emitProgress(Progress{Stage: StageDeduplicate})
		return collapsed
	}

	var persisted []model.EventRecord
	err := withRetry(ctx, o.cfg.Retry, func() error {
		var ferr error
		persisted, ferr = o.events.FindByCityDates(ctx, opts.City, dedup.Dates(events))
		return ferr
	})
	if err != nil {
		o.logger.Warn("persisted-event lookup failed, deduplicating batch-internal only", "error", err)
		persisted = nil
	}

	unique, skipped := o.deduper.Partition(events, persisted)
	tally.skippedDuplicates.Add(int64(len(events) - len(unique)))

	if opts.Debug {
		for _, ev := range skipped {
			o.logger.Debug("duplicate skipped", "title", ev.Title, "date", ev.Day())
		}
	}

	o.emitProgress(Progress{Stage: StageDeduplicate})
	return unique
}

// processBatch runs venue resolution and persistence for every event of
// the batch on the worker pool. It returns the events that persisted
// successfully; the error is non-nil only for fatal persistence loss.
func (o *Orchestrator) processBatch(ctx context.Context, batch []model.EventRecord, opts Options, tally *counters, errs *errorList) ([]model.EventRecord, error) {
	ctx, end := o.startSpan(ctx, "pipeline.batch", attribute.Int("events", len(batch)))
	defer end()

	var mu sync.Mutex
	var fatal error
	stored := make([]model.EventRecord, 0, len(batch))

	var wg sync.WaitGroup
	for i := range batch {
		ev := &batch[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			persisted, err := o.processEvent(ctx, ev, opts, tally, errs)
			mu.Lock()
			if persisted {
				stored = append(stored, *ev)
			}
			if err != nil && fatal == nil && eferrors.IsFatal(err) {
				fatal = err
			}
			mu.Unlock()
		}
		if err := o.pool.Submit(task); err != nil {
			wg.Done()
			tally.failed.Add(1)
			errs.add("%s: worker pool rejected task: %v", ev.Title, err)
		}
	}
	wg.Wait()

	return stored, fatal
}

// processEvent takes one event through venue resolution and upsert.
// Every failure is isolated to this event. The boolean reports whether
// the event reached the persistence layer successfully.
func (o *Orchestrator) processEvent(ctx context.Context, ev *model.EventRecord, opts Options, tally *counters, errs *errorList) (bool, error) {
	if ev.VenueName != "" {
		resolver := o.resolver
		if opts.DryRun {
			resolver = o.dryResolver
		}

		var res venue.Resolution
		err := withRetry(ctx, o.cfg.Retry, func() error {
			// Every attempt is a fresh external call, so every
			// attempt takes its own throttle slot.
			if err := o.throttle.Acquire(ctx); err != nil {
				return err
			}
			var rerr error
			res, rerr = resolver.Resolve(ctx, ev.VenueName, ev.VenueAddress, ev.City)
			return rerr
		})
		if err != nil {
			tally.failed.Add(1)
			errs.add("%s: venue resolution failed: %v", ev.Title, err)
			o.logger.Warn("venue resolution failed", "title", ev.Title, "venue", ev.VenueName, "error", err)
			return false, nil
		}
		ev.VenueID = res.ID
		if res.IsNew {
			tally.venuesCreated.Add(1)
		} else {
			tally.venuesReused.Add(1)
		}
	}

	persisted := false
	if !opts.DryRun {
		var created bool
		err := withRetry(ctx, o.cfg.Retry, func() error {
			var uerr error
			created, uerr = o.events.UpsertEvent(ctx, ev)
			return uerr
		})
		switch {
		case err == nil:
			persisted = true
			if created {
				tally.inserted.Add(1)
			} else {
				tally.updated.Add(1)
			}
		case eferrors.IsConflict(err):
			// Unique-constraint hit: the event exists, which is what
			// we wanted. Counted as an update, not a failure.
			persisted = true
			tally.updated.Add(1)
		case eferrors.IsFatal(err):
			tally.failed.Add(1)
			errs.add("%s: %v", ev.Title, err)
			return false, err
		default:
			tally.failed.Add(1)
			errs.add("%s: persist failed: %v", ev.Title, err)
			o.logger.Warn("persist failed", "title", ev.Title, "error", err)
			return false, nil
		}
	}

	tally.processed.Add(1)
	return persisted, nil
}

// syncCache merges the persisted events of a batch into the day buckets
// and writes the merged day views back to the cache, per canonical
// category plus the combined "all" entry. Cache trouble is logged and
// never fails the run.
func (o *Orchestrator) syncCache(ctx context.Context, city string, batch []model.EventRecord, tally *counters) {
	if o.store == nil || len(batch) == 0 {
		return
	}
	ctx, end := o.startSpan(ctx, "pipeline.cache_sync", attribute.Int("events", len(batch)))
	defer end()

	now := time.Now()
	for _, date := range dedup.Dates(batch) {
		o.buckets.UpsertDayEvents(city, date, batch)
		bucket, ok := o.buckets.GetDayEvents(city, date)
		if !ok {
			continue
		}

		all := make([]model.EventRecord, 0, len(bucket.Events))
		for _, ev := range bucket.Events {
			all = append(all, ev)
		}
		sort.Slice(all, func(i, j int) bool {
			if !all[i].StartAt.Equal(all[j].StartAt) {
				return all[i].StartAt.Before(all[j].StartAt)
			}
			return all[i].Title < all[j].Title
		})

		ttl := o.cacheTTL(all, now)
		if err := o.store.Set(ctx, cache.CreateKey(city, date, nil), all, ttl); err != nil {
			o.logger.Warn("cache sync failed", "city", city, "date", date, "error", err)
		} else {
			tally.cached.Add(1)
		}

		// Group the index by canonical category name so alias
		// variants in a shared bucket collapse into one entry
		// instead of overwriting each other.
		byCanonical := make(map[string][]string)
		for category, ids := range bucket.CategoryIndex {
			canonical := cache.NormalizeCategory(category)
			byCanonical[canonical] = append(byCanonical[canonical], ids...)
		}
		for category, ids := range byCanonical {
			events := make([]model.EventRecord, 0, len(ids))
			for _, id := range ids {
				if ev, found := bucket.Events[id]; found {
					events = append(events, ev)
				}
			}
			if err := cache.SetForCategory(ctx, o.store, city, date, category, events, o.cacheTTL(events, now)); err != nil {
				o.logger.Warn("cache sync failed", "city", city, "date", date, "category", category, "error", err)
				continue
			}
			tally.cached.Add(1)
		}
	}
}

// cacheTTL derives the entry lifetime from the furthest-elapsing event,
// floored so freshly written entries are always servable for a while.
func (o *Orchestrator) cacheTTL(events []model.EventRecord, now time.Time) time.Duration {
	ttl := o.cfg.MinCacheTTL
	for i := range events {
		if until := events[i].ElapsesAt().Sub(now); until > ttl {
			ttl = until
		}
	}
	return ttl
}

// postLinkStage repairs events persisted without a venue id, best
// effort after the batches.
func (o *Orchestrator) postLinkStage(ctx context.Context, city string, dates []string) {
	ctx, end := o.startSpan(ctx, "pipeline.post_link", attribute.String("city", city))
	defer end()

	linked, err := o.RelinkVenues(ctx, city, dates)
	if err != nil {
		o.logger.Warn("post-link pass failed", "city", city, "error", err)
		return
	}
	if linked > 0 {
		o.logger.Info("post-link pass repaired events", "city", city, "linked", linked)
	}
	o.emitProgress(Progress{Stage: StagePostLink})
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if o.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// splitBatches chunks events preserving order.
func splitBatches(events []model.EventRecord, size int) [][]model.EventRecord {
	if len(events) == 0 {
		return nil
	}
	batches := make([][]model.EventRecord, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		stop := start + size
		if stop > len(events) {
			stop = len(events)
		}
		batches = append(batches, events[start:stop])
	}
	return batches
}
