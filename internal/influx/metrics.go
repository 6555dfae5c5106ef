package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"
	"go.uber.org/zap"

	"loadtest-engine/internal/engine"
)

const writeBatchSize = 5000

type record struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

// records flattens a report into run_summary, run_sample, run_status and run_percentile rows.
func records(report *engine.Report) []record {
	if report == nil || report.Result == nil {
		return nil
	}
	r := report.Result
	base := map[string]string{
		"run_id": report.RunID,
		"driver": report.Driver,
		"method": string(report.Config.Method),
		"url":    report.Config.URL,
	}
	at := report.StartedAt
	if at.IsZero() {
		at = time.Now()
	}

	summary := map[string]any{
		"vus":             r.Summary.VUs,
		"requests":        r.Summary.Requests,
		"failed":          r.Summary.Failed,
		"avg_response_ms": r.Summary.AvgResponseTime,
		"min_response_ms": r.Metrics.MinResponseTime,
		"max_response_ms": r.Metrics.MaxResponseTime,
		"duration":        r.Metrics.Duration,
		"request_rate":    r.Metrics.RequestRate,
		"partial":         report.Partial,
		"elapsed_ms":      report.Elapsed.Milliseconds(),
	}
	if f := report.Forecast; f != nil {
		summary["performance_score"] = f.PerformanceScore
		summary["scalability_factor"] = f.ScalabilityFactor
		summary["recommended_max_concurrency"] = f.RecommendedMaxConcurrency
		summary["predicted_throughput"] = f.PredictedThroughput
	}

	out := make([]record, 0, 1+len(r.TimeSeries)+len(r.HTTPStatusCodes)+len(r.ResponseTime))
	out = append(out, record{"run_summary", withTags(base, nil), summary, at})

	for i, s := range r.TimeSeries {
		ts := s.At
		if ts.IsZero() {
			ts = at.Add(time.Duration(i) * time.Second)
		}
		out = append(out, record{
			"run_sample",
			withTags(base, nil),
			map[string]any{"response_ms": s.ResponseTime, "active_users": s.ActiveUsers},
			ts,
		})
	}
	for code, count := range r.HTTPStatusCodes {
		out = append(out, record{
			"run_status",
			withTags(base, map[string]string{"status": code}),
			map[string]any{"count": count},
			at,
		})
	}
	for _, p := range r.ResponseTime {
		out = append(out, record{
			"run_percentile",
			withTags(base, map[string]string{"percentile": p.Percentile, "rating": string(p.Rating)}),
			map[string]any{"value_ms": p.Value},
			at,
		})
	}
	return out
}

func withTags(base, extra map[string]string) map[string]string {
	tags := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		if v != "" {
			tags[k] = v
		}
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// WriteReport exports one finished run in batches.
func (c *Client) WriteReport(ctx context.Context, report *engine.Report) error {
	if c == nil || report == nil {
		return nil
	}

	rows := records(report)
	points := make([]*influxdb3.Point, 0, min(len(rows), writeBatchSize))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		points = append(points, influxdb3.NewPoint(row.measurement, row.tags, row.fields, row.ts))
		if len(points) >= writeBatchSize {
			if err := c.writer.WritePoints(ctx, points); err != nil {
				return fmt.Errorf("failed to write points: %w", err)
			}
			points = points[:0]
		}
	}
	if len(points) > 0 {
		if err := c.writer.WritePoints(ctx, points); err != nil {
			return fmt.Errorf("failed to write points: %w", err)
		}
	}

	c.logger.Debug("exported run to influxdb",
		zap.String("run_id", report.RunID),
		zap.Int("points", len(rows)),
	)
	return nil
}
