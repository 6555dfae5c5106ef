package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/history"
)

// Execute runs a single config and hands the report to history and InfluxDB. Sink failures
// are logged and do not fail the run; the entry is nil when nothing was recorded.
func (o *Orchestrator) Execute(ctx context.Context, cfg config.TestConfig) (*engine.Report, *history.Entry, error) {
	report, err := o.runner.Run(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var entry *history.Entry
	if o.store != nil {
		entry, err = o.store.Record(ctx, report)
		if err != nil {
			o.logger.Warn("failed to record history", zap.String("run_id", report.RunID), zap.Error(err))
			entry = nil
		}
	}

	if err := o.influx.WriteReport(ctx, report); err != nil {
		o.logger.Warn("failed to export to influxdb", zap.String("run_id", report.RunID), zap.Error(err))
	}

	return report, entry, nil
}

// Retry re-runs the config stored with a history entry.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*engine.Report, *history.Entry, error) {
	if o.store == nil {
		return nil, nil, history.ErrNotFound
	}
	cfg, err := o.store.RetryConfig(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o.Execute(ctx, cfg)
}

// History exposes the store backing Execute, nil when history is disabled.
func (o *Orchestrator) History() *history.Store {
	return o.store
}
