// Package summary writes run reports to disk and prints them to the console.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
)

const metaFile = "results.json"

// RunResult tracks one config from start to its report or failure.
type RunResult struct {
	Name      string
	Config    config.TestConfig
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Report    *engine.Report
	Error     string
}

func NewRunResult(name string, cfg config.TestConfig) *RunResult {
	return &RunResult{Name: name, Config: cfg, StartTime: time.Now()}
}

func (r *RunResult) Complete(report *engine.Report) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Report = report
}

func (r *RunResult) SetError(err error) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Error = err.Error()
}

type MetaResults struct {
	Meta    ResultMeta   `json:"meta"`
	Summary BatchSummary `json:"summary"`
	Runs    []RunSummary `json:"runs"`
}

type ResultMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

type BatchSummary struct {
	TotalRuns       int   `json:"total_runs"`
	SuccessfulRuns  int   `json:"successful_runs"`
	FailedRuns      int   `json:"failed_runs"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// RunSummary is the per-run file written next to the batch summary.
type RunSummary struct {
	Name       string            `json:"name"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Config     config.TestConfig `json:"config"`
	Report     *engine.Report    `json:"report,omitempty"`
}

type Writer struct {
	startTime  time.Time
	resultsDir string
}

func NewWriter(resultsDir string) *Writer {
	return &Writer{
		startTime:  time.Now(),
		resultsDir: resultsDir,
	}
}

// ExportRunResult writes one run to <resultsDir>/<name>.json.
func (w *Writer) ExportRunResult(result *RunResult) (string, error) {
	if err := os.MkdirAll(w.resultsDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create results dir: %w", err)
	}

	path := filepath.Join(w.resultsDir, fileName(result.Name)+".json")
	if err := writeJSON(path, runSummaryFromResult(result)); err != nil {
		return "", fmt.Errorf("failed to write run results: %w", err)
	}
	return path, nil
}

// ExportMetaResults collects every run file in the results dir into results.json.
func (w *Writer) ExportMetaResults() (*MetaResults, string, error) {
	if err := os.MkdirAll(w.resultsDir, 0o750); err != nil {
		return nil, "", fmt.Errorf("failed to create results dir: %w", err)
	}

	runs, successCount, failCount, err := readRunSummaries(w.resultsDir)
	if err != nil {
		return nil, "", err
	}

	metaResults := &MetaResults{
		Meta: ResultMeta{Timestamp: w.startTime},
		Summary: BatchSummary{
			TotalRuns:       len(runs),
			SuccessfulRuns:  successCount,
			FailedRuns:      failCount,
			TotalDurationMs: time.Since(w.startTime).Milliseconds(),
		},
		Runs: runs,
	}

	path := filepath.Join(w.resultsDir, metaFile)
	if err := writeJSON(path, metaResults); err != nil {
		return nil, "", fmt.Errorf("failed to write meta results: %w", err)
	}
	return metaResults, path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readRunSummaries(dir string) (runs []RunSummary, successCount, failCount int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read results dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == metaFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(dir, name)
		var data []byte
		data, err = os.ReadFile(path) //nolint:gosec // path is constructed from controlled results directory
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var run RunSummary
		if err = json.Unmarshal(data, &run); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		runs = append(runs, run)
		if run.Error == "" {
			successCount++
		} else {
			failCount++
		}
	}

	return runs, successCount, failCount, nil
}

func runSummaryFromResult(result *RunResult) RunSummary {
	return RunSummary{
		Name:       result.Name,
		DurationMs: result.Duration.Milliseconds(),
		Error:      result.Error,
		Config:     result.Config,
		Report:     result.Report,
	}
}

func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
