package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"deepfakeapi/config"
	"deepfakeapi/db"
	"deepfakeapi/detect"
	"deepfakeapi/filecheck"
	"deepfakeapi/frames"
	"deepfakeapi/frames/cvcapture"
	"deepfakeapi/logging"
	"deepfakeapi/mediahost"
	"deepfakeapi/metrics"
	"deepfakeapi/predict"
	"deepfakeapi/ratelim"
	"deepfakeapi/rdx"
	"deepfakeapi/reqlog"
	"deepfakeapi/routes"
	"deepfakeapi/uploads"
	"deepfakeapi/urlfetch"
	"deepfakeapi/utils"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.TempDir, cfg.Storage.FramesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
	}

	media, err := mediahost.New(cfg.Media, logger)
	if err != nil {
		return err
	}
	media = mediahost.Counted(media, collector.RecordMediaUpload)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cache, err := rdx.Connect(connectCtx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, upload info cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer cache.Close()

	var registry *filecheck.Registry
	store, err := db.Connect(connectCtx, cfg.Mongo)
	if err != nil {
		logger.Warn("mongodb unavailable, upload registry disabled", zap.Error(err))
	} else if store != nil {
		registry = filecheck.NewRegistry(store.FilesCollection, logger)
		defer store.Close(context.Background())
	}

	limiter, err := ratelim.NewRateLimiter(cfg.RateLimit, logger, ratelim.WithOnLimited(collector.RecordRateLimited))
	if err != nil {
		return err
	}
	go limiter.Run(ctx)

	proxies, err := utils.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	requestLog := reqlog.New(cfg.RequestLog)
	defer requestLog.Close()

	handler := routes.NewHandler(routes.Deps{
		Detect: detect.NewHandler(detect.Deps{
			Config:    cfg,
			Predictor: predict.NewPlaceholder(),
			Sampler:   frames.NewSampler(cvcapture.Open, logger),
			Fetcher: urlfetch.NewFetcher(nil, urlfetch.Options{
				Timeout:   cfg.Fetch.Timeout,
				UserAgent: cfg.Fetch.UserAgent,
				SavePath:  cfg.Storage.URLImagePath,
			}, logger),
			Media:   media,
			Metrics: collector,
			Logger:  logger,
		}),
		Uploads:    uploads.NewHandler(cfg, cache, registry, media, logger),
		Registry:   registry,
		RequestLog: requestLog,
		Limiter:    limiter,
		Metrics:    collector,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		Proxies:    proxies,
		Logger:     logger,
	}, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("media_host", cfg.Media.Enabled()),
			zap.Bool("redis", cache != nil),
			zap.Bool("mongodb", registry != nil),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, shutting down gracefully")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}
