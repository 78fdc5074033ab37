package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/iconidentify/hlsgrabba/internal/api"
	"github.com/iconidentify/hlsgrabba/internal/api/handler"
	"github.com/iconidentify/hlsgrabba/internal/config"
	"github.com/iconidentify/hlsgrabba/internal/downloader"
	"github.com/iconidentify/hlsgrabba/internal/platform"
	"github.com/iconidentify/hlsgrabba/internal/repository"
	"github.com/iconidentify/hlsgrabba/internal/service"
	"github.com/iconidentify/hlsgrabba/internal/worker"
	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsgrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting hlsgrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Ensure storage directories exist
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	settings := config.NewSettingsStore(cfg.Storage.SettingsPath(), logger)
	if err := settings.Load(); err != nil {
		logger.Warn("using default settings", "error", err)
	}

	history, err := repository.NewSQLiteHistoryRepository(cfg.Storage.HistoryPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	events, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize:   cfg.Events.RingBufferSize,
		SubscriberBuffer: cfg.Events.SubscriberBuffer,
		PersistToSQLite:  cfg.Events.PersistHistory,
		SQLitePath:       cfg.Storage.EventsPath(),
		RetentionDays:    cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("create event service: %w", err)
	}
	defer events.Close()

	remuxer, err := ffmpeg.NewRemuxer(ffmpeg.Options{
		FFmpegPath:   cfg.FFmpeg.FFmpegPath,
		FFprobePath:  cfg.FFmpeg.FFprobePath,
		ProbeTimeout: cfg.FFmpeg.ProbeTimeout,
		StopGrace:    cfg.FFmpeg.StopGrace,
	})
	if err != nil {
		return err
	}
	if version, err := remuxer.Version(context.Background()); err == nil {
		logger.Info("ffmpeg found", "version", version)
	}

	proxy := platform.NewSystemProxy(logger)
	newRunner := worker.NewFactory(remuxer, proxy, worker.Config{
		RetryBackoff: cfg.Worker.RetryBackoff,
	}, logger)

	queue := repository.NewInMemoryJobQueue(logger)
	svc := service.NewQueueService(service.QueueServiceConfig{
		QueuePath:   cfg.Storage.QueuePath(),
		OutputDir:   cfg.Storage.OutputDir,
		StopTimeout: cfg.Worker.StopTimeout,
	}, queue, settings, events, history, newRunner, logger)
	svc.SetNotifier(platform.NewDesktopNotifier(platform.ExecRunner, logger))
	svc.SetPowerActor(platform.NewPowerController(platform.ExecRunner, logger))

	if err := svc.Load(); err != nil {
		logger.Warn("could not load saved queue", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleanupEvents(ctx, events, logger)

	if cfg.Worker.AutoStart {
		if err := svc.Start(); err != nil {
			logger.Error("failed to start queue", "error", err)
		}
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		fetcher := downloader.NewHTTPFetcher(downloader.FetcherConfig{Proxy: proxy}, logger)
		router := api.NewRouter(api.Handlers{
			Health:   handler.NewHealthHandler(queue, cfg.Storage.OutputDir),
			Jobs:     handler.NewJobHandler(svc, logger),
			Queue:    handler.NewQueueHandler(svc, logger),
			Events:   handler.NewEventHandler(events, logger),
			Settings: handler.NewSettingsHandler(settings, svc.SettingsChanged, logger),
			History:  handler.NewHistoryHandler(svc, logger),
			Quality:  handler.NewQualityHandler(downloader.NewQualityDiscoverer(fetcher, logger), logger),
		}, cfg.Server.APIKey, logger)

		srv = &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		// Start server in goroutine
		go func() {
			logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		// Stop accepting new requests
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}

	// Cancel running downloads and persist the queue
	if err := svc.Shutdown(); err != nil {
		logger.Error("queue shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger picks a text handler for interactive terminals and JSON otherwise.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	useText := cfg.Format == "text" ||
		(cfg.Format == "auto" && term.IsTerminal(int(os.Stdout.Fd())))
	if useText {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func cleanupEvents(ctx context.Context, events *service.EventService, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if err := events.CleanupOldEvents(ctx); err != nil {
			logger.Warn("event cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
