package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ewintr.nl/vidl/config"
	"ewintr.nl/vidl/feed"
	"ewintr.nl/vidl/fetcher"
	"ewintr.nl/vidl/handler"
	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("unable to open storage", slog.String("driver", cfg.DBDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// the work context outlives the triggers, so the pool can drain
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	triggerCtx, stopTriggers := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopTriggers()

	source, err := youtubeSource(workCtx, cfg, logger)
	if err != nil {
		logger.Error("unable to create youtube source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sources := fetcher.Sources{model.ServiceYoutube: source}

	thumbs := storage.NewThumbnailCache(500, 24*time.Hour, cfg.RedisURL, logger)
	ytdlp := process.NewYtdlp(process.YtdlpInfo{
		Dir:            cfg.DownloadDir,
		FilenameFormat: cfg.FilenameFormat,
		Format:         cfg.YtdlpFormat,
	}, logger)
	pool := process.NewPool(cfg.Workers, &process.Dispatcher{
		Updater:    process.NewUpdater(store, sources, cfg.UpdateInterval, logger),
		Downloads:  process.NewDownloads(store, ytdlp, logger),
		Thumbnails: process.NewThumbnails(thumbs, cfg.RequestTimeout, logger),
	}, logger)
	pool.Start(workCtx)

	scheduler := process.NewScheduler(store, pool, cfg.ScheduleInterval, logger)
	go scheduler.Run(triggerCtx)
	logger.Info("scheduler started", slog.Duration("interval", cfg.ScheduleInterval))

	if cfg.MinifluxEndpoint != "" {
		mflx := feed.NewMiniflux(feed.MinifluxInfo{
			Endpoint: cfg.MinifluxEndpoint,
			ApiKey:   cfg.MinifluxAPIKey,
		})
		go feed.NewTrigger(mflx, store, pool, logger).Run(triggerCtx, cfg.FeedInterval)
		logger.Info("feed trigger started", slog.String("endpoint", cfg.MinifluxEndpoint))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: handler.NewServer(store, sources, pool, thumbs, logger),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
			stopTriggers()
		}
	}()
	logger.Info("http server started", slog.Int("port", cfg.APIPort))

	<-triggerCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", slog.String("error", err.Error()))
	}
	pool.Stop()
	cancelWork()

	logger.Info("service stopped")
}

func openStore(cfg config.Config) (*storage.SQL, error) {
	if cfg.DBDriver == "postgres" {
		return storage.NewPostgres(storage.PostgresInfo{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		})
	}
	return storage.NewSQLite(cfg.SQLitePath)
}

func youtubeSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (fetcher.ChannelSource, error) {
	limiter := fetcher.NewRateLimiter(cfg.RateLimit, cfg.RatePeriod)
	retryCfg := fetcher.DefaultRetryConfig()
	retryCfg.AttemptTimeout = cfg.RequestTimeout

	if cfg.YoutubeSource == "api" {
		client, err := youtube.NewService(ctx, option.WithAPIKey(cfg.YoutubeAPIKey))
		if err != nil {
			return nil, err
		}
		return fetcher.NewYoutube(client, limiter, retryCfg, logger), nil
	}

	return fetcher.NewInvidious(fetcher.InvidiousInfo{
		Endpoint: cfg.InvidiousURL,
		Timeout:  cfg.RequestTimeout,
		Retry:    retryCfg,
	}, limiter, logger), nil
}
