// Package driver runs a plan through a load generator and hands back its measurement artifact.
//
// A Driver is used in three steps: Start launches the run, Await blocks until it produced an
// artifact (or failed, timed out, or was cancelled) and Cleanup releases every temporary file.
// The synthetic driver implements the same contract so callers never branch on the driver kind.
package driver

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"loadtest-engine/internal/aggregate"
	"loadtest-engine/internal/plan"
)

var (
	ErrDriverUnavailable = errors.New("load driver unavailable")
	ErrDriverTimeout     = errors.New("load driver timed out")
	ErrDriverError       = errors.New("load driver failed")
	ErrCancelled         = errors.New("run cancelled")
)

const DefaultTimeout = 120 * time.Second

type Driver interface {
	Name() string
	Start(ctx context.Context, p *plan.Plan) (*Handle, error)
	Await(ctx context.Context, h *Handle, timeout time.Duration) (Artifact, error)
	Cleanup(h *Handle) error
}

// Handle identifies one started run. Workspace is nil for drivers without files.
type Handle struct {
	RunID     string
	Plan      *plan.Plan
	Workspace *Workspace
	StartedAt time.Time

	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
	output  *outputBuffer
}

// Artifact is what a finished run produced. Replay feeds it into an aggregate state.
type Artifact interface {
	Replay(ctx context.Context, state *aggregate.State) (aggregate.ConsumeStats, error)
	// Partial reports whether the run was cut short by the timeout.
	Partial() bool
}

// StreamArtifact is a line-delimited JSON measurement file written by an external process.
type StreamArtifact struct {
	Path    string
	partial bool
}

func (a *StreamArtifact) Replay(ctx context.Context, state *aggregate.State) (aggregate.ConsumeStats, error) {
	return state.ConsumeFile(ctx, a.Path)
}

func (a *StreamArtifact) Partial() bool { return a.partial }

// StateArtifact carries an already aggregated state, as produced by the synthetic driver.
type StateArtifact struct {
	State *aggregate.State
}

func (a *StateArtifact) Replay(ctx context.Context, state *aggregate.State) (aggregate.ConsumeStats, error) {
	if err := ctx.Err(); err != nil {
		return aggregate.ConsumeStats{}, err
	}
	state.Merge(a.State)
	return aggregate.ConsumeStats{}, nil
}

func (a *StateArtifact) Partial() bool { return false }
