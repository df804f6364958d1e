package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/config"
	"github.com/heimdex/highlighter/internal/coordinator"
	"github.com/heimdex/highlighter/internal/db"
	"github.com/heimdex/highlighter/internal/highlights"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/pipeline"
	"github.com/heimdex/highlighter/internal/worker"
)

// app holds everything a command needs, wired from one resolved config.
type app struct {
	cfg      *config.EnvConfig
	logger   *slog.Logger
	database *db.DB
	coord    *coordinator.Coordinator
	sink     *highlights.Sink
	avail    *worker.CachedAvailability
}

// loadConfig resolves the config file, environment and command-line flags,
// with flags taking precedence.
func loadConfig(cmd *cobra.Command) (*config.EnvConfig, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("transport") && transport != "" {
		if transport != config.TransportHTTP && transport != config.TransportExec {
			return nil, fmt.Errorf("invalid --transport %q: must be %s or %s", transport, config.TransportHTTP, config.TransportExec)
		}
		cfg.SetTransport(transport)
	}
	if flags.Changed("concurrency") {
		if concurrency < 0 {
			return nil, fmt.Errorf("invalid --concurrency %d", concurrency)
		}
		cfg.SetBatchConcurrency(concurrency)
	}
	if flags.Changed("delegate-search") {
		cfg.SetDelegateSearch(delegate)
	}
	if flags.Changed("port") && port != 0 {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid --port %d", port)
		}
		cfg.SetPort(port)
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel()
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewLogger(level)

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a, err := wire(cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.EnvConfig, database *db.DB, logger *slog.Logger) (*app, error) {
	tr := pathmap.NewTranslator(cfg.ControlRoot(), cfg.LocalRoot())

	dispatcher, err := newDispatcher(cfg, tr, logger)
	if err != nil {
		return nil, err
	}

	catalog := pipeline.NewCatalog(cfg.Endpoints())
	executor := pipeline.NewExecutor(dispatcher, tr, logger)

	sink, err := highlights.NewSink(highlights.Config{
		Dir:    cfg.HighlightsDir(),
		Ext:    cfg.ClipExt(),
		Index:  highlights.NewSQLiteIndex(database.Conn()),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open highlights dir: %w", err)
	}

	processor, err := batch.NewProcessor(executor, catalog, sink, batch.Options{
		ClipExt:        cfg.ClipExt(),
		Concurrency:    cfg.BatchConcurrency(),
		DelegateSearch: cfg.DelegateSearch(),
	}, logger)
	if err != nil {
		return nil, err
	}

	avail := worker.NewCachedAvailability(dispatcher, catalog.Endpoints(), logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		sink:     sink,
		avail:    avail,
		coord: coordinator.New(coordinator.Config{
			Catalog:      catalog,
			Executor:     executor,
			Processor:    processor,
			Availability: avail,
			Logger:       logger,
		}),
	}, nil
}

func newDispatcher(cfg config.Config, tr *pathmap.Translator, logger *slog.Logger) (worker.Dispatcher, error) {
	switch cfg.Transport() {
	case config.TransportExec:
		return worker.NewExecDispatcher(worker.ExecConfig{
			Command:    cfg.ExecCommand(),
			Translator: tr,
			Timeout:    cfg.WorkerTimeout(),
			Logger:     logger,
		})
	default:
		return worker.NewHTTPDispatcher(worker.HTTPConfig{
			BaseURL: cfg.GatewayURL(),
			Timeout: cfg.WorkerTimeout(),
			Logger:  logger,
		}), nil
	}
}

func (a *app) Close() error {
	return a.database.Close()
}

// commandContext is cancelled by SIGINT/SIGTERM and by --timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}
