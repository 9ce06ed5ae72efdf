package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modelhost/internal/config"
	"modelhost/internal/events"
	"modelhost/internal/httpapi"
	"modelhost/internal/infercache"
	"modelhost/internal/manager"
	"modelhost/internal/perfmon"
	"modelhost/internal/registry"
	"modelhost/internal/resmon"
	"modelhost/internal/runtime"
	"modelhost/internal/store"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	if cfg.EnableTelemetry {
		unsub := bus.SubscribeAll(func(e events.Event) {
			log.Debug().Str("event", string(e.Kind)).Str("model", e.ModelID).Fields(e.Fields).Msg("event")
		})
		defer unsub()
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reg := registry.New()
	disc := registry.NewDiscovery(reg, registry.DirScanner{}, st, bus, log)
	if n, err := disc.Discover(ctx, cfg.ModelsDirs); err != nil {
		log.Warn().Err(err).Msg("initial model discovery incomplete")
	} else {
		log.Info().Int("models", n).Strs("dirs", cfg.ModelsDirs).Msg("model discovery done")
	}

	sampler := resmon.ProcSampler{}
	monitor := resmon.NewMonitor(sampler, bus, log, cfg.MemoryCheckInterval(),
		cfg.MemoryWarningThresholdPercent, cfg.MemoryCriticalThresholdPercent)

	perf := perfmon.New(perfmon.Config{}, bus, log)

	threads := flagLlamaThreads
	if threads <= 0 {
		threads = goruntime.NumCPU()
	}
	factory := runtime.NewLlamaFactory(flagLlamaCtxSize, threads)

	mgr := manager.New(manager.Config{
		MaxConcurrentModels:      cfg.MaxConcurrentModels,
		WarningThresholdPercent:  cfg.MemoryWarningThresholdPercent,
		CriticalThresholdPercent: cfg.MemoryCriticalThresholdPercent,
		AutoUnloadTimeout:        cfg.AutoUnloadTimeout(),
	}, reg, factory, sampler, bus, perf, log)

	cache := infercache.New(infercache.Config{MaxBytes: cfg.CacheSizeBytes}, bus, log)
	if n, err := cache.LoadFrom(ctx, st); err != nil {
		log.Warn().Err(err).Msg("cache restore failed")
	} else if n > 0 {
		log.Info().Int("entries", n).Msg("cache restored")
	}
	opt := infercache.NewOptimizer(cache, mgr, perf, log)

	if len(flagCORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, flagCORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type"})
	}

	mux := httpapi.NewMux(httpapi.Deps{
		Registry:      reg,
		Discovery:     disc,
		Manager:       mgr,
		Optimizer:     opt,
		Cache:         cache,
		Perf:          perf,
		Store:         st,
		Log:           log,
		ModelsDirs:    cfg.ModelsDirs,
		FallbackModel: cfg.FallbackModelID,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(ctx) })
	g.Go(func() error { return mgr.Run(ctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("modelhostd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Persist what we can before the store closes; models must release
	// their memory even if persistence fails.
	finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := cache.SaveTo(finalCtx, st); serr != nil {
		log.Warn().Err(serr).Msg("cache persist failed")
	}
	if cerr := mgr.Close(finalCtx); cerr != nil {
		log.Warn().Err(cerr).Msg("manager shutdown incomplete")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("modelhostd stopped")
	return nil
}

// loadConfig reads the optional config file and layers flag overrides on
// top, then applies defaults and validates.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if flagConfig != "" {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", flagConfig, err)
		}
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if len(flagModelsDirs) > 0 {
		cfg.ModelsDirs = flagModelsDirs
	}
	if flagStorePath != "" {
		cfg.StorePath = flagStorePath
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagFallbackModel != "" {
		cfg.FallbackModelID = flagFallbackModel
	}
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log, nil
}
