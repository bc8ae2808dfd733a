package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/avolens/dubsync/internal/config"
	"github.com/avolens/dubsync/internal/events"
	"github.com/avolens/dubsync/internal/history"
	"github.com/avolens/dubsync/internal/logger"
	"github.com/avolens/dubsync/internal/media"
	"github.com/avolens/dubsync/internal/narration"
	"github.com/avolens/dubsync/internal/playback"
	"github.com/avolens/dubsync/internal/server"
	"github.com/avolens/dubsync/internal/settings"
	"github.com/avolens/dubsync/internal/subtitle"
	"github.com/avolens/dubsync/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting dubsync playback engine")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addresses[0],
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	log.Info("Connected to Redis successfully")

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	bus := events.NewBus(logger.NewLogrusAdapter(logger.WithComponent(log, "events")))
	defer bus.Close()

	resolver := subtitle.NewResolver(logger.NewLogrusAdapter(logger.WithComponent(log, "subtitles")))
	registry := narration.NewRegistry(bus, logger.NewLogrusAdapter(logger.WithComponent(log, "narrations")))

	store, err := settings.NewStore(ctx, redisClient, settings.Settings{
		NarrationEnabled: cfg.Playback.DefaultEnabled,
		NarrationVolume:  cfg.Playback.DefaultVolume,
		VideoVolume:      1.0,
	}, bus, logger.NewLogrusAdapter(logger.WithComponent(log, "settings")))
	if err != nil {
		log.WithError(err).Fatal("Failed to load settings")
	}

	var prober playback.DurationProber
	if cfg.Media.ProbeEnabled {
		prober = media.NewProber(cfg.Media.ProbeTimeout,
			logger.NewLogrusAdapter(logger.WithComponent(log, "media")))
	}

	pool := playback.NewPool(playback.NewRemoteFactory(), prober, store.Get().NarrationVolume,
		bus, logger.NewLogrusAdapter(logger.WithComponent(log, "pool")))
	pool.SetAutoplayRetry(cfg.Playback.AutoplayRetry)
	defer pool.Close()

	var journal *history.Journal
	if cfg.History.Enabled {
		journal, err = history.Open(cfg.History.Path,
			logger.NewLogrusAdapter(logger.WithComponent(log, "history")))
		if err != nil {
			log.WithError(err).Fatal("Failed to open history journal")
		}
		defer journal.Close()
	}

	var recorder playback.SwitchRecorder
	if journal != nil {
		recorder = journal
	}

	scheduler := playback.NewScheduler(resolver, registry, pool,
		media.NewURLResolver(cfg.Media.BaseURL), store, recorder,
		cfg.Playback.DefaultClipDuration, bus,
		logger.NewLogrusAdapter(logger.WithComponent(log, "scheduler")))
	defer scheduler.Close()

	clock := playback.NewClock(cfg.Playback.TickInterval, cfg.Playback.MaxReportRate,
		cfg.Playback.ReportBurst, scheduler.Tick,
		logger.NewLogrusAdapter(logger.WithComponent(log, "clock")))
	clock.Start()
	defer clock.Stop()

	srv := server.New(cfg, log, redisClient, server.Deps{
		Bus:        bus,
		Subtitles:  resolver,
		Narrations: registry,
		Settings:   store,
		Clock:      clock,
		Scheduler:  scheduler,
		Pool:       pool,
		Journal:    journal,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(runCtx); err != nil {
		log.WithError(err).Fatal("Server error")
	}

	if err := redisClient.Close(); err != nil {
		log.WithError(err).Error("Failed to close Redis connection")
	}

	log.Info("Shutdown complete")
}

// startMetricsServer starts the Prometheus metrics endpoint.
func startMetricsServer(cfg config.MetricsConfig, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server error")
	}
}
