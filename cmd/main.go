package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/video-sections/internal/cache"
	"github.com/MimeLyc/video-sections/internal/config"
	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/httpapi"
	"github.com/MimeLyc/video-sections/internal/jobs"
	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/locator"
	"github.com/MimeLyc/video-sections/internal/planner"
	"github.com/MimeLyc/video-sections/internal/service"
	"github.com/MimeLyc/video-sections/internal/textgen"
	"github.com/MimeLyc/video-sections/internal/transcript"
	"github.com/MimeLyc/video-sections/internal/tutor"
	"github.com/MimeLyc/video-sections/pkg/icron"
	"github.com/MimeLyc/video-sections/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// Initialize configuration
	cfg, err := config.New()
	if err != nil {
		stdlog.Fatal("Failed to load configuration:", err)
	}

	closeLog, err := setupLogger(cfg.System)
	if err != nil {
		stdlog.Fatal("Failed to set up logging:", err)
	}
	defer closeLog()

	llmClient, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
		RateLimit:   cfg.LLM.RateLimit,
		RateBurst:   cfg.LLM.RateBurst,
	})
	if err != nil {
		log.Fatal("Failed to create LLM client: %v", err)
	}

	loc, err := locator.New(locator.Config{
		Window:    cfg.Planner.SearchWindow,
		Threshold: cfg.Planner.MatchThreshold,
	})
	if err != nil {
		log.Fatal("Invalid planner configuration: %v", err)
	}

	planCache, closeCache, err := openCache(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to open %s cache: %v", cfg.Cache.Backend, err)
	}
	defer closeCache()

	gen := textgen.New(llmClient)
	enrich := enricher.New(gen)
	svc := service.New(
		transcript.NewFileLibrary(cfg.Transcript.Dir, cfg.Transcript.Languages),
		planner.New(gen, loc),
		enrich,
		planCache,
		service.Options{Concurrency: cfg.Enrich.Concurrency, QuizPrefix: cfg.Enrich.QuizPrefix},
	)

	queue := jobs.NewQueue(cfg.System.RunWorkers)
	queue.Start(svc)
	defer queue.Stop()

	srv := httpapi.NewServer(svc, queue, httpapi.WithTutor(tutor.New(llmClient, enrich)))

	var sweeper cache.Sweeper
	if s, ok := planCache.(cache.Sweeper); ok && cfg.Cache.TTL > 0 {
		sweeper = s
	}
	cronRunner := cron.New()
	sweep := newSweepScheduler(cronRunner, sweeper, cfg.Cache.SweepCron)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, sweep, cronRunner, srv); err != nil {
		log.Error("Server stopped with error: %v", err)
	}
}

// runWithComponents schedules background work, serves HTTP and shuts both
// down once ctx is cancelled.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	engine cronEngine,
	httpSrv httpServer,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule background jobs: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func setupLogger(cfg config.SystemConfig) (func(), error) {
	level := log.ParseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		log.InitLogger(level)
		return func() {}, nil
	}
	fl, err := log.NewFileLogger(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}
	log.SetLogger(fl.Logger)
	return func() { _ = fl.Close() }, nil
}

// openCache builds the configured backend and its close function.
func openCache(cfg config.CacheConfig) (cache.Cache, func(), error) {
	switch cfg.Backend {
	case config.CacheSQLite:
		store, err := cache.NewSQLite(cfg.DBPath, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.CacheRedis:
		store, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.CacheMemory, "":
		return cache.NewMemory(cache.WithMaxEntries(cfg.MaxEntries), cache.WithTTL(cfg.TTL)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// sweepScheduler registers the periodic cache sweep on a cron runner.
type sweepScheduler struct {
	cron    *cron.Cron
	sweeper cache.Sweeper
	expr    string
}

func newSweepScheduler(c *cron.Cron, sweeper cache.Sweeper, expr string) sweepScheduler {
	return sweepScheduler{cron: c, sweeper: sweeper, expr: expr}
}

func (s sweepScheduler) Schedule(ctx context.Context) error {
	if s.sweeper == nil {
		log.Info("Cache sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.expr, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	if info, err := icron.GetTriggerInfo(s.expr, time.Now()); err == nil {
		log.Info("Cache sweep scheduled (%s), next run at %s", s.expr, info.Next.Format(time.RFC3339))
	}
	return nil
}

func (s sweepScheduler) sweep(ctx context.Context) {
	removed, err := s.sweeper.Sweep(ctx, time.Now())
	if err != nil {
		log.Error("Cache sweep failed: %v", err)
		return
	}
	if removed > 0 {
		log.Info("Cache sweep removed %d expired plans", removed)
	}
}
