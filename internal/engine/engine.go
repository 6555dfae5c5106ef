// Package engine runs a TestConfig end to end: plan, execute, aggregate, finalize and forecast.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"loadtest-engine/internal/aggregate"
	"loadtest-engine/internal/config"
	"loadtest-engine/internal/driver"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/plan"
	"loadtest-engine/internal/stats"
)

// Report is the sole output of a run handed to presentation and storage.
type Report struct {
	RunID     string             `json:"runId"`
	Driver    string             `json:"driver"`
	Fallback  string             `json:"fallback,omitempty"`
	Partial   bool               `json:"partial,omitempty"`
	StartedAt time.Time          `json:"startedAt"`
	Elapsed   time.Duration      `json:"elapsed"`
	Config    config.TestConfig  `json:"config"`
	Result    *stats.TestResult  `json:"result"`
	Forecast  *forecast.Forecast `json:"forecast"`
}

// Execution is the aggregated outcome of running a plan, before statistics.
type Execution struct {
	RunID     string
	Driver    string
	Fallback  string
	Partial   bool
	StartedAt time.Time
	State     *aggregate.State
	Skipped   int
}

type Engine struct {
	primary   driver.Driver
	fallback  driver.Driver
	timeout   time.Duration
	estimator stats.Estimator
	logger    *zap.Logger
	metrics   *Metrics
	newRand   func() *rand.Rand
}

type Option func(*Engine)

// WithDriver sets the real load driver tried first. Without one every run is synthetic.
func WithDriver(d driver.Driver) Option { return func(e *Engine) { e.primary = d } }

func WithFallback(d driver.Driver) Option { return func(e *Engine) { e.fallback = d } }

func WithTimeout(timeout time.Duration) Option { return func(e *Engine) { e.timeout = timeout } }

func WithEstimator(est stats.Estimator) Option { return func(e *Engine) { e.estimator = est } }

func WithLogger(logger *zap.Logger) Option { return func(e *Engine) { e.logger = logger } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithRand sets the source of the per-run generator used to synthesize active users.
func WithRand(newRand func() *rand.Rand) Option { return func(e *Engine) { e.newRand = newRand } }

func New(opts ...Option) *Engine {
	e := &Engine{
		timeout:   driver.DefaultTimeout,
		estimator: stats.MeanMultiplier{},
		logger:    zap.NewNop(),
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fallback == nil {
		e.fallback = driver.NewSynthetic(nil)
	}
	return e
}

// Run validates cfg and executes it. It fails only with plan.ErrInvalidConfig before anything
// starts, or with driver.ErrCancelled when ctx ends first; driver failures degrade to synthetic data.
func (e *Engine) Run(ctx context.Context, cfg config.TestConfig) (*Report, error) {
	p, err := plan.Build(cfg)
	if err != nil {
		e.countRun("none", outcomeInvalid)
		return nil, err
	}

	execution, err := e.Execute(ctx, p)
	if err != nil {
		return nil, err
	}

	result := stats.FinalizeWith(execution.State, p, e.estimator)
	report := &Report{
		RunID:     execution.RunID,
		Driver:    execution.Driver,
		Fallback:  execution.Fallback,
		Partial:   execution.Partial,
		StartedAt: execution.StartedAt,
		Elapsed:   time.Since(execution.StartedAt),
		Config:    cfg.Clone(),
		Result:    result,
		Forecast:  forecast.Compute(result, p.HoldDuration),
	}

	e.countRun(report.Driver, outcomeCompleted)
	if e.metrics != nil {
		e.metrics.runDuration.WithLabelValues(report.Driver).Observe(report.Elapsed.Seconds())
	}
	e.logger.Info("load test finished",
		zap.String("run_id", report.RunID),
		zap.String("driver", report.Driver),
		zap.Bool("partial", report.Partial),
		zap.Int64("requests", result.Summary.Requests),
		zap.Int64("failed", result.Summary.Failed),
		zap.Int("performance_score", report.Forecast.PerformanceScore),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// Execute runs p through the real driver and falls back to the synthetic one when the real
// driver is missing or fails without output.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (*Execution, error) {
	if e.metrics != nil {
		e.metrics.activeRuns.Inc()
		defer e.metrics.activeRuns.Dec()
	}

	execution, err := e.executeWith(ctx, e.primary, p)
	if err == nil {
		return execution, nil
	}
	if cancelled(ctx, err) {
		return nil, e.cancel(ctx, err)
	}

	reason := fallbackReason(err)
	if e.metrics != nil {
		e.metrics.fallbacks.WithLabelValues(reason).Inc()
	}
	if e.primary != nil {
		e.logger.Warn("load driver failed, using synthetic data",
			zap.String("driver", e.primary.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	execution, err = e.executeWith(ctx, e.fallback, p)
	if err != nil {
		if cancelled(ctx, err) {
			return nil, e.cancel(ctx, err)
		}
		e.countRun(e.fallback.Name(), outcomeFailed)
		return nil, fmt.Errorf("synthetic driver: %w", err)
	}
	execution.Fallback = reason
	return execution, nil
}

func (e *Engine) executeWith(ctx context.Context, d driver.Driver, p *plan.Plan) (*Execution, error) {
	if d == nil {
		return nil, driver.ErrDriverUnavailable
	}

	h, err := d.Start(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cleanupErr := d.Cleanup(h); cleanupErr != nil {
			e.logger.Error("failed to clean up run artifacts", zap.String("run_id", h.RunID), zap.Error(cleanupErr))
		}
	}()

	artifact, err := d.Await(ctx, h, e.timeout)
	if err != nil {
		return nil, err
	}
	if artifact.Partial() {
		e.logger.Warn("load driver timed out, using partial output",
			zap.String("run_id", h.RunID),
			zap.Duration("timeout", e.timeout),
		)
	}

	state := aggregate.New(p.VirtualUsers, e.newRand())
	consumed, err := artifact.Replay(ctx, state)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", driver.ErrCancelled, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", driver.ErrDriverError, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrCancelled, ctxErr)
	}

	if consumed.Skipped > 0 {
		if e.metrics != nil {
			e.metrics.skippedLines.Add(float64(consumed.Skipped))
		}
		e.logger.Debug("skipped malformed measurement lines",
			zap.String("run_id", h.RunID),
			zap.Int("skipped", consumed.Skipped),
			zap.Int("lines", consumed.Lines),
		)
	}

	return &Execution{
		RunID:     h.RunID,
		Driver:    d.Name(),
		Partial:   artifact.Partial(),
		StartedAt: h.StartedAt,
		State:     state,
		Skipped:   consumed.Skipped,
	}, nil
}

func (e *Engine) cancel(ctx context.Context, err error) error {
	e.countRun("none", outcomeCancelled)
	e.logger.Info("load test cancelled", zap.Error(err))
	if errors.Is(err, driver.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", driver.ErrCancelled, context.Cause(ctx))
}

func (e *Engine) countRun(driverName, outcome string) {
	if e.metrics != nil {
		e.metrics.runs.WithLabelValues(driverName, outcome).Inc()
	}
}

func cancelled(ctx context.Context, err error) bool {
	return errors.Is(err, driver.ErrCancelled) || ctx.Err() != nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, driver.ErrDriverUnavailable):
		return "unavailable"
	case errors.Is(err, driver.ErrDriverTimeout):
		return "timeout"
	default:
		return "error"
	}
}
