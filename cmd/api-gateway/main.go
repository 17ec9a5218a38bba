package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/app"
	"github.com/rudironsoni/Synaxis-sub005/config"
	"github.com/rudironsoni/Synaxis-sub005/routes"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := initLogger(cfg.Observability)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("gateway exited", zap.Error(err))
	}
}

// run boots the gateway and blocks until a shutdown signal or a server
// failure, then drains in-flight requests before releasing dependencies.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// WriteTimeout bounds an entire response, streamed completions included;
	// deployments that stream long outputs raise SERVER_WRITE_TIMEOUT.
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("tls", cfg.Server.TLS.Enabled))

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var errs *multierror.Error
	select {
	case err := <-serverErr:
		errs = multierror.Append(errs, err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close dependencies: %w", err))
	}

	return errs.ErrorOrNil()
}

// initLogger builds the process logger from observability settings. Text
// format selects the human-readable development encoder; everything else is
// production JSON.
func initLogger(obs config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(obs.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", obs.LogLevel, err)
	}

	var zcfg zap.Config
	switch obs.LogFormat {
	case "text", "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}
