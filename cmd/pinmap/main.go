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

	"cloud.google.com/go/storage"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/pinmap-service/internal/adapter/gcs"
	"github.com/couchcryptid/pinmap-service/internal/adapter/geocode"
	"github.com/couchcryptid/pinmap-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/pinmap-service/internal/adapter/kafka"
	"github.com/couchcryptid/pinmap-service/internal/adapter/memory"
	"github.com/couchcryptid/pinmap-service/internal/adapter/postgres"
	"github.com/couchcryptid/pinmap-service/internal/config"
	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/geocoding"
	"github.com/couchcryptid/pinmap-service/internal/observability"
	"github.com/couchcryptid/pinmap-service/internal/pins"
	"github.com/couchcryptid/pinmap-service/internal/pipeline"
)

const maxImageBytes = 10 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, observability.NewMetrics()); err != nil {
		logger.Error("pinmap stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

// run wires the service, serves until ctx is done, then shuts down in
// reverse order. Startup failures are returned so deferred cleanup runs.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	providers := geocode.DefaultProviders(geocode.ProviderConfig{
		Language:      cfg.GeocodeLanguage,
		LocationIQKey: cfg.LocationIQKey,
		MapboxToken:   cfg.MapboxToken,
	})
	chain := geocode.NewChain(providers, geocode.ChainConfig{
		Timeout:       cfg.GeocodeTimeout,
		FallbackDelay: cfg.GeocodeFallbackDelay,
	}, metrics, logger)
	logger.Info("geocoding providers configured", "providers", chain.Providers())

	resolver := geocoding.NewResolver(chain, geocoding.Config{
		MaxConcurrent: cfg.GeocodeMaxConcurrent,
		RetryMin:      cfg.GeocodeRetryMin,
		RetryMax:      cfg.GeocodeRetryMax,
		SettleMin:     cfg.GeocodeSettleMin,
		SettleMax:     cfg.GeocodeSettleMax,
	}, metrics, logger)
	defer resolver.Close()

	var checks readinessChecks

	// Pin storage: Postgres when configured, memory otherwise.
	var pinStore domain.PinStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewPinStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open pin store: %w", err)
		}
		defer pg.Close()
		pinStore = pg
		checks = append(checks, pg)
		logger.Info("pin store: postgres")
	} else {
		pinStore = memory.NewPinStore()
		logger.Info("pin store: memory")
	}

	var (
		imageStore  domain.ImageStore
		imageOpener httpadapter.ImageOpener
	)
	switch cfg.ImageStore {
	case config.ImageStoreGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, cfg.GCSBucket)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("open image store: %w", err)
		}
		defer store.Close()
		imageStore = store
		checks = append(checks, store)
		logger.Info("image store: gcs", "bucket", cfg.GCSBucket)
	default:
		store := memory.NewImageStore("/api/v1/images", maxImageBytes)
		imageStore, imageOpener = store, store
		logger.Info("image store: memory")
	}

	var events domain.PinEventPublisher
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaPinTopic, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		events = publisher
		logger.Info("pin events enabled", "topic", cfg.KafkaPinTopic)
	}

	svc := pins.NewService(pinStore, imageStore, events, cfg.DeletePasswordHash, metrics, logger)
	if cfg.DeletePasswordHash == "" {
		logger.Warn("DELETE_PASSWORD_HASH not set; pin deletion is disabled")
	}

	warmer := pipeline.New(pinStore, resolver, logger, metrics)
	checks = append(checks, warmer)

	api := httpadapter.NewAPI(httpadapter.Config{
		Geocoder:           resolver,
		Pins:               svc,
		Images:             imageOpener,
		Ready:              checks,
		Metrics:            metrics,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		GestureThreshold:   cfg.GestureDragThreshold,
		MaxUploadBytes:     maxImageBytes,
	})
	defer api.Close()
	srv := httpadapter.NewServer(cfg.HTTPAddr, api, logger)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Warm the geocoding cache from stored pins.
	go func() {
		if err := warmer.Run(ctx); err != nil {
			logger.Error("cache warm-up error", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// readinessChecks reports the first failing check.
type readinessChecks []sharedobs.ReadinessChecker

func (c readinessChecks) CheckReadiness(ctx context.Context) error {
	for _, check := range c {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
