package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/piyushrajyadav/drop-fade/internal/audit"
	"github.com/piyushrajyadav/drop-fade/internal/blob"
	"github.com/piyushrajyadav/drop-fade/internal/config"
	"github.com/piyushrajyadav/drop-fade/internal/gateway"
	"github.com/piyushrajyadav/drop-fade/internal/logging"
	"github.com/piyushrajyadav/drop-fade/internal/metrics"
	"github.com/piyushrajyadav/drop-fade/internal/registry"
	"github.com/piyushrajyadav/drop-fade/internal/server"
)

func main() {
	if err := config.LoadEnvFile(os.Getenv("DF_ENV_FILE")); err != nil {
		logging.Error("env_file_load_failed", nil, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error("config_invalid", nil, err)
		os.Exit(1)
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With(logging.Fields{"service": "backend"})
	logging.SetDefault(log)
	for _, w := range cfg.Warnings() {
		log.Warn("config_warning", logging.Fields{"warning": w})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", nil, err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled and then
// shuts down in reverse order.
func run(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	m := metrics.New(cfg.Version)

	backend, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("blob backend: %w", err)
	}
	defer closeBackend()

	recorder, checks, closeAudit, err := openAudit(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer closeAudit()

	store := registry.NewStore()
	m.TrackRecords(store.Len)

	gw := gateway.New(store, backend,
		gateway.WithLimits(cfg.MaxFileBytes, cfg.MaxTextBytes),
		gateway.WithLogger(log),
		gateway.WithAudit(recorder),
		gateway.WithMetrics(m),
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.StartSweepJob(sweepCtx, registry.SweepConfig{
			Enabled:  true,
			Interval: cfg.SweepInterval,
			Store:    store,
			Logger:   log,
			OnSwept:  gw.HandleSwept,
		})
	}()

	srv := server.New(server.Config{
		Addr:             cfg.Addr,
		Version:          cfg.Version,
		Commit:           cfg.Commit,
		UploadsPerMinute: cfg.UploadsPerMinute,
		TrustProxy:       cfg.TrustProxy,
	}, server.Deps{
		Gateway: gw,
		Logger:  log,
		Metrics: m,
		Checks:  checks,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting", logging.Fields{
			"addr":         cfg.Addr,
			"version":      cfg.Version,
			"commit":       cfg.Commit,
			"blob_backend": backend.Name(),
		})
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting_down", nil)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_error", nil, err)
	}

	stopSweep()
	<-sweepDone
	gw.Wait()

	log.Info("shutdown_complete", logging.Fields{"records_dropped": store.Len()})
	return serveErr
}

// openBackend builds the configured blob backend behind a circuit breaker.
func openBackend(ctx context.Context, cfg config.Config, log *logging.Logger) (blob.Backend, func(), error) {
	var (
		backend blob.Backend
		closer  = func() {}
	)

	switch cfg.BlobBackend {
	case config.BackendMinIO:
		mc, err := blob.NewMinIO(ctx, blob.MinIOConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = mc
	case config.BackendRedis:
		// Blobs never need to outlive the longest expiry option.
		rs, err := blob.NewRedis(ctx, cfg.RedisURL, registry.MaxExpiry)
		if err != nil {
			return nil, nil, err
		}
		backend = rs
		closer = func() {
			if err := rs.Close(); err != nil {
				log.Warn("redis_close_failed", logging.Fields{"error": err.Error()})
			}
		}
	case config.BackendMemory, "":
		backend = blob.NewMemory()
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}

	cb := blob.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerTimeout, log.With(logging.Fields{"component": "circuit_breaker"}))
	return blob.WithBreaker(backend, cb), closer, nil
}

// openAudit connects the Postgres audit trail when DATABASE_URL is set.
// Without it events are dropped.
func openAudit(ctx context.Context, cfg config.Config, log *logging.Logger) (audit.Recorder, map[string]server.Check, func(), error) {
	if cfg.DatabaseURL == "" {
		return audit.Nop{}, nil, func() {}, nil
	}

	if err := audit.Migrate(ctx, cfg.DatabaseURL, log); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := audit.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open: %w", err)
	}

	pg := audit.NewPostgres(db)
	checks := map[string]server.Check{"audit": pg.Ping}
	closer := func() {
		if err := db.Close(); err != nil {
			log.Warn("audit_db_close_failed", logging.Fields{"error": err.Error()})
		}
	}
	return pg, checks, closer, nil
}
