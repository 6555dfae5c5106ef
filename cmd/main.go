package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"loadtest-engine/internal/cli"
	"loadtest-engine/internal/config"
	"loadtest-engine/internal/driver"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/history"
	"loadtest-engine/internal/influx"
	"loadtest-engine/internal/orchestrator"
	"loadtest-engine/internal/server"
	"loadtest-engine/internal/stats"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := cli.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		cli.Failf("%v", err)
		return 2
	}
	if opts == nil {
		opts = &cli.Options{Interactive: true}
	}

	settings, err := config.LoadSettings()
	if err != nil {
		cli.Failf("Failed to load settings: %v", err)
		return 1
	}
	if opts.Influx {
		settings.Influx.Enabled = true
	}

	logger, err := newLogger(settings.LogLevel, opts.Verbose)
	if err != nil {
		cli.Failf("Failed to create logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	driverName := settings.Driver
	switch {
	case opts.Synthetic:
		driverName = config.DriverSynthetic
	case opts.Driver != "":
		driverName = opts.Driver
	}
	if !config.ValidDriver(driverName) {
		cli.Failf("Unknown driver %q, expected k6 or synthetic", driverName)
		return 2
	}

	eng := newEngine(ctx, settings, driverName, logger)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithConsole(!opts.Serve),
	}
	if opts.Output != "" {
		orchOpts = append(orchOpts, orchestrator.WithResultsDir(opts.Output))
	}

	if opts.Serve || settings.HistoryBackend != config.HistoryMemory {
		repo, err := history.Open(settings)
		if err != nil {
			cli.Failf("Failed to open history: %v", err)
			return 1
		}
		store := history.NewStore(repo, settings.HistoryCap, logger)
		defer func() {
			if err := store.Close(context.Background()); err != nil { //nolint:contextcheck // close after cancellation
				logger.Warn("failed to close history", zap.Error(err))
			}
		}()
		orchOpts = append(orchOpts, orchestrator.WithHistory(store))
	}

	influxClient, err := influx.NewClient(settings.Influx, logger)
	if err != nil {
		logger.Warn("influxdb export disabled", zap.Error(err))
	}
	defer func() { _ = influxClient.Close() }()
	orchOpts = append(orchOpts, orchestrator.WithInflux(influxClient))

	orch := orchestrator.New(eng, orchOpts...)

	if opts.Serve {
		srv := server.New(server.Config{
			Addr:      settings.ServerAddr,
			RateLimit: settings.RateLimit,
			RateBurst: settings.RateBurst,
			Gatherer:  prometheus.DefaultGatherer,
		}, orch, logger)
		if err := srv.Start(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
		return 0
	}

	configs, err := loadConfigs(opts)
	if err != nil {
		cli.Failf("%v", err)
		return 2
	}
	if len(configs) == 1 {
		cli.PrintSummary(&configs[0])
	}

	_, err = orch.RunAll(ctx, configs)
	switch {
	case err == nil:
		return 0
	case ctx.Err() != nil:
		cli.Warnf("Interrupted, runs were cancelled")
		return 130
	default:
		cli.Failf("%v", err)
		return 1
	}
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

func newEngine(ctx context.Context, settings *config.Settings, driverName string, logger *zap.Logger) *engine.Engine {
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTimeout(settings.DriverTimeout),
		engine.WithEstimator(stats.EstimatorByName(settings.Percentiles)),
		engine.WithMetrics(engine.NewMetrics(prometheus.DefaultRegisterer)),
	}

	switch driverName {
	case config.DriverSynthetic:
		engineOpts = append(engineOpts, engine.WithDriver(driver.NewSynthetic(nil)))
	default:
		k6 := driver.NewK6(settings.K6Binary, settings.ArtifactDir, logger)
		if version, err := k6.Probe(ctx, driver.ProbeTimeout); err != nil {
			logger.Warn("k6 is not available, runs will use synthetic data", zap.Error(err))
		} else {
			logger.Info("using k6", zap.String("version", version))
		}
		engineOpts = append(engineOpts, engine.WithDriver(k6))
	}
	return engine.New(engineOpts...)
}

func loadConfigs(opts *cli.Options) ([]config.TestConfig, error) {
	if len(opts.ConfigFiles) > 0 {
		var configs []config.TestConfig
		for _, file := range opts.ConfigFiles {
			loaded, err := config.Load(file)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			configs = append(configs, loaded...)
		}
		return configs, nil
	}

	if opts.Interactive {
		cli.PrintBanner()
		cfg, err := cli.PromptConfig(opts.Config)
		if err != nil {
			return nil, err
		}
		return []config.TestConfig{*cfg}, nil
	}

	cfg := opts.Config.Clone()
	if err := config.ApplyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("%w (use --help for usage)", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return []config.TestConfig{cfg}, nil
}
