package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eventflow/eventflow/internal/model"
	"github.com/eventflow/eventflow/pkg/cache"
	"github.com/eventflow/eventflow/pkg/config"
	"github.com/eventflow/eventflow/pkg/pipeline"
	"github.com/eventflow/eventflow/pkg/repo"
	"github.com/eventflow/eventflow/pkg/telemetry"
	"github.com/eventflow/eventflow/pkg/tui"
	"github.com/eventflow/eventflow/pkg/watch"
)

// stack bundles the wired pipeline and everything that needs teardown.
type stack struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	store        cache.Store
	repo         *repo.Memory
	progress     chan pipeline.Progress

	cancel   context.CancelFunc
	shutdown []func()
}

func (s *stack) close() {
	s.orchestrator.Close()
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		s.shutdown[i]()
	}
}

// buildStack wires the orchestrator from config and flags. The bundled
// repository is the in-memory reference implementation; deployments
// embedding the pipeline supply their own EventRepository.
func buildStack(withProgress bool) (*stack, error) {
	cfg := config.Global().Get()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	s := &stack{cfg: cfg}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Cache tier: Redis when configured, in-memory otherwise
	redisAddr := redisFlag
	if redisAddr == "" && cfg.Cache.Redis.Enabled {
		redisAddr = cfg.Cache.Redis.Addr
	}
	if redisAddr != "" {
		rcfg := cache.DefaultRedisConfig(redisAddr)
		rcfg.Password = cfg.Cache.Redis.Password
		rcfg.Database = cfg.Cache.Redis.DB
		if cfg.Cache.Redis.KeyPrefix != "" {
			rcfg.Prefix = cfg.Cache.Redis.KeyPrefix
		}
		store, err := cache.NewRedisStore(rcfg, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		s.store = store
		s.shutdown = append(s.shutdown, func() { store.Close() })
	} else {
		store := cache.NewMemoryStore(
			cache.WithCapacity(cfg.Cache.Capacity),
			cache.WithLogger(logger),
		)
		store.StartSweeper(ctx, cfg.Cache.SweepInterval)
		s.store = store
	}

	pcfg := pipeline.Config{
		Concurrency:      cfg.Pipeline.Concurrency,
		BatchPause:       cfg.Pipeline.BatchPause,
		ThrottleMax:      cfg.Pipeline.Throttle.Max,
		ThrottleInterval: cfg.Pipeline.Throttle.Interval,
		MinCacheTTL:      cfg.Cache.DefaultTTL,
		Retry: pipeline.RetryConfig{
			MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
			BaseDelay:   cfg.Pipeline.Retry.BaseDelay,
			MaxDelay:    cfg.Pipeline.Retry.MaxDelay,
		},
	}

	opts := []pipeline.OrchestratorOption{
		pipeline.WithCache(s.store),
		pipeline.WithLogger(logger),
	}

	if cfg.Telemetry.Enabled {
		tcfg := telemetry.DefaultOTLPConfig()
		tcfg.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			tcfg.Endpoint = cfg.Telemetry.Endpoint
		}
		tracer, stop, err := telemetry.InitOTLP(ctx, tcfg)
		if err != nil {
			logger.Warn("telemetry disabled, exporter init failed", "error", err)
		} else {
			opts = append(opts, pipeline.WithTracer(tracer))
			s.shutdown = append(s.shutdown, func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				stop(shutdownCtx)
			})
		}
	}

	if withProgress {
		s.progress = make(chan pipeline.Progress, 64)
		opts = append(opts, pipeline.WithProgress(s.progress))
	}

	s.repo = repo.NewMemory()
	s.orchestrator = pipeline.NewOrchestrator(pcfg, s.repo, s.repo, opts...)
	return s, nil
}

// runOptions translates the shared CLI flags into pipeline options.
func runOptions() pipeline.Options {
	city := cityFlag
	if city == "" {
		city = config.Global().Get().Pipeline.DefaultCity
	}
	batchSize := batchSizeFlag
	if batchSize <= 0 {
		batchSize = config.Global().Get().Pipeline.BatchSize
	}
	return pipeline.Options{
		Source:            sourceFlag,
		City:              city,
		BatchSize:         batchSize,
		DryRun:            dryRunFlag,
		SkipDeduplication: skipDedupFlag,
		SkipCacheSync:     noCacheFlag,
		Debug:             verbose,
	}
}

func readBatch(path string) ([]model.RawEvent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	var raws []model.RawEvent
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("batch is not a JSON array of events: %w", err)
	}
	return raws, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	raws, err := readBatch(args[0])
	if err != nil {
		return err
	}

	s, err := buildStack(true)
	if err != nil {
		return err
	}
	defer s.close()

	tui.PrintHeader(version)
	fmt.Printf("  Ingesting %d raw events\n", len(raws))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tui.WatchProgress(s.progress, "ingesting")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := s.orchestrator.Run(ctx, raws, runOptions())
	close(s.progress)
	wg.Wait()

	tui.PrintResult(res)
	if !res.Success {
		os.Exit(1)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := buildStack(false)
	if err != nil {
		return err
	}
	defer s.close()

	var watchOpts []watch.Option
	if debounceFlag != "" {
		d, err := time.ParseDuration(debounceFlag)
		if err != nil {
			return fmt.Errorf("invalid --debounce: %w", err)
		}
		watchOpts = append(watchOpts, watch.WithDebounce(d))
	} else if s.cfg.Watch.Debounce > 0 {
		watchOpts = append(watchOpts, watch.WithDebounce(s.cfg.Watch.Debounce))
	}

	w, err := watch.NewWatcher(args[0], watchOpts...)
	if err != nil {
		return err
	}

	opts := runOptions()
	w.OnFile = func(path string) error {
		raws, err := readBatch(path)
		if err != nil {
			return err
		}
		res := s.orchestrator.Run(context.Background(), raws, opts)
		slog.Info("batch ingested", "path", path, "summary", res.String())
		if !res.Success {
			return fmt.Errorf("ingestion failed: %s", res.ErrorMessage)
		}
		return nil
	}
	w.OnError = func(err error) {
		slog.Warn("watch error", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui.PrintHeader(version)
	fmt.Printf("  Watching %s for JSON batches\n\n", w.Dir())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runRelink(cmd *cobra.Command, args []string) error {
	if len(datesFlag) == 0 {
		return fmt.Errorf("at least one --date is required")
	}
	for _, d := range datesFlag {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", d)
		}
	}

	s, err := buildStack(false)
	if err != nil {
		return err
	}
	defer s.close()

	city := cityFlag
	if city == "" {
		city = s.cfg.Pipeline.DefaultCity
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	linked, err := s.orchestrator.RelinkVenues(ctx, city, datesFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Relinked %d events in %s\n", linked, city)
	return nil
}
