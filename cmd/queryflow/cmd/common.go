package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/viper"

	"github.com/randalmurphal/queryflow/internal/audit"
	"github.com/randalmurphal/queryflow/internal/config"
	"github.com/randalmurphal/queryflow/internal/logging"
	"github.com/randalmurphal/queryflow/internal/service"
	"github.com/randalmurphal/queryflow/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// appDeps replaces collaborators Build would create from configuration.
// Tests use it to run commands without a model provider.
var appDeps service.Dependencies

// app is everything a command needs to run queries.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Telemetry
	pubSub    *gochannel.GoChannel
	audit     *audit.Writer
	runner    *service.Runner
}

func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newApp loads configuration and builds the runner with telemetry and, when
// an audit directory is configured, the audit writer.
func newApp(ctx context.Context) (_ *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, appVersion); err != nil {
		return nil, err
	}
	opts := []service.Option{service.WithRunOptions(a.telemetry.RunOptions()...)}

	if cfg.Audit.Enabled() {
		// Publishing blocks until the writer acks, so audit files exist
		// when a run returns.
		a.pubSub = gochannel.NewGoChannel(
			gochannel.Config{BlockPublishUntilSubscriberAck: true},
			watermill.NewSlogLogger(logger),
		)
		if a.audit, err = audit.NewWriter(cfg.Audit.Dir, a.pubSub, logger); err != nil {
			return nil, err
		}
		if err = a.audit.Start(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, service.WithPublisher(a.pubSub))
	}

	deps := appDeps
	deps.Logger = logger
	if a.runner, err = service.Build(ctx, cfg, deps, opts...); err != nil {
		return nil, fmt.Errorf("building runner: %w", err)
	}
	return a, nil
}

// Close releases the runner, stops the audit writer and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.runner != nil {
		errs = append(errs, a.runner.Close())
	}
	if a.pubSub != nil {
		errs = append(errs, a.pubSub.Close())
		if a.audit != nil {
			a.audit.Wait()
		}
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("shutdown failed", "error", err)
	}
}
