package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

const ctxCheckEvery = 1024

// ConsumeStats reports how many lines a stream had and how many were skipped as malformed.
type ConsumeStats struct {
	Lines   int
	Skipped int
}

// Consume reads a line-delimited stream into s until EOF. Malformed lines are skipped.
func (s *State) Consume(ctx context.Context, r io.Reader) (ConsumeStats, error) {
	var stats ConsumeStats
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			stats.Lines++
			if err := s.IngestLine(line); err != nil {
				stats.Skipped++
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("failed to read measurement stream: %w", readErr)
		}

		if stats.Lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
	}
}

// ConsumeFile opens path and consumes it.
func (s *State) ConsumeFile(ctx context.Context, path string) (ConsumeStats, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside the run workspace
	if err != nil {
		return ConsumeStats{}, fmt.Errorf("failed to open measurement stream: %w", err)
	}
	defer f.Close()

	return s.Consume(ctx, f)
}
