// Package orchestrator runs batches of test configs and sends every report to the configured sinks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loadtest-engine/internal/cli"
	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/history"
	"loadtest-engine/internal/influx"
	"loadtest-engine/internal/summary"
)

var ErrRunsFailed = errors.New("one or more runs failed")

// Runner executes one config end to end. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, cfg config.TestConfig) (*engine.Report, error)
}

type Orchestrator struct {
	runner   Runner
	store    *history.Store
	influx   *influx.Client
	writer   *summary.Writer
	logger   *zap.Logger
	parallel int
	console  bool
}

type Option func(*Orchestrator)

func WithHistory(store *history.Store) Option { return func(o *Orchestrator) { o.store = store } }

func WithInflux(client *influx.Client) Option { return func(o *Orchestrator) { o.influx = client } }

// WithResultsDir exports every run and a batch summary as JSON under dir.
func WithResultsDir(dir string) Option {
	return func(o *Orchestrator) { o.writer = summary.NewWriter(dir) }
}

func WithLogger(logger *zap.Logger) Option { return func(o *Orchestrator) { o.logger = logger } }

// WithParallelism bounds how many configs of a batch run at once.
func WithParallelism(n int) Option { return func(o *Orchestrator) { o.parallel = n } }

// WithConsole prints progress and summaries to stdout.
func WithConsole(enabled bool) Option { return func(o *Orchestrator) { o.console = enabled } }

func New(runner Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{runner: runner, logger: zap.NewNop(), parallel: 4}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunAll runs the configs concurrently. A failing run does not stop the others; the returned
// error wraps ErrRunsFailed when any of them failed.
func (o *Orchestrator) RunAll(ctx context.Context, configs []config.TestConfig) ([]*summary.RunResult, error) {
	results := make([]*summary.RunResult, len(configs))
	for i, cfg := range configs {
		results[i] = summary.NewRunResult(runName(i, cfg), cfg)
	}

	var spinner *cli.ProgressSpinner
	if o.console {
		spinner = cli.NewProgressSpinner()
		spinner.Start(len(configs), longestRun(configs))
	}

	var g errgroup.Group
	g.SetLimit(max(o.parallel, 1))
	for i := range configs {
		result := results[i]
		g.Go(func() error {
			if spinner != nil {
				spinner.Update(string(result.Config.Method), result.Config.URL)
				defer spinner.Done()
			}
			report, _, err := o.Execute(ctx, result.Config)
			if err != nil {
				result.SetError(err)
				return nil
			}
			result.Complete(report)
			return nil
		})
	}
	_ = g.Wait()

	if spinner != nil {
		spinner.Stop()
	}

	failed := 0
	for _, result := range results {
		if result.Error != "" {
			failed++
		}
		o.report(result)
	}
	o.finish(results)

	if err := ctx.Err(); err != nil {
		return results, err
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrRunsFailed, failed, len(results))
	}
	return results, nil
}

func (o *Orchestrator) report(result *summary.RunResult) {
	if o.console {
		cli.RunHeader(result.Name)
		summary.PrintRunSummary(result)
	}

	if o.writer == nil {
		return
	}
	path, err := o.writer.ExportRunResult(result)
	if err != nil {
		o.logger.Warn("failed to export run", zap.String("run", result.Name), zap.Error(err))
		return
	}
	if o.console {
		cli.Infof("Exported: %s", path)
		cli.RunFooter()
	}
}

func (o *Orchestrator) finish(results []*summary.RunResult) {
	if o.console {
		summary.PrintBatchSummary(results)
	}
	if o.writer == nil || len(results) < 2 {
		return
	}
	_, path, err := o.writer.ExportMetaResults()
	if err != nil {
		o.logger.Warn("failed to export batch summary", zap.Error(err))
		return
	}
	if o.console {
		cli.Infof("Meta results: %s", path)
	}
}

func runName(i int, cfg config.TestConfig) string {
	return fmt.Sprintf("%02d %s %s", i+1, cfg.Method, cfg.URL)
}

func longestRun(configs []config.TestConfig) time.Duration {
	var longest time.Duration
	for _, cfg := range configs {
		hold, _ := config.ParseDuration(cfg.Duration)
		ramp, _ := config.ParseDuration(cfg.RampUp)
		longest = max(longest, 2*ramp+hold)
	}
	return longest
}
