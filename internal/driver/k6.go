package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loadtest-engine/internal/plan"
)

const (
	ProbeTimeout = 5 * time.Second

	k6DriverName   = "k6"
	k6OutputPrefix = "json="
	k6WaitDelay    = 2 * time.Second
	maxOutputTail  = 2048
)

// K6 drives the k6 binary: it renders the plan as a script inside a fresh workspace and runs
// "k6 run --out json=<workspace>/results.json <workspace>/script.js".
type K6 struct {
	binary string
	root   string
	logger *zap.Logger
}

func NewK6(binary, artifactRoot string, logger *zap.Logger) *K6 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &K6{binary: binary, root: artifactRoot, logger: logger}
}

func (k *K6) Name() string { return k6DriverName }

// Probe returns the installed k6 version, or ErrDriverUnavailable.
func (k *K6) Probe(ctx context.Context, timeout time.Duration) (string, error) {
	path, err := exec.LookPath(k.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, path, "version").CombinedOutput() //nolint:gosec // binary comes from settings
	if err != nil {
		return "", fmt.Errorf("%w: k6 version failed: %w,\noutput: %s", ErrDriverUnavailable, err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

func (k *K6) Start(ctx context.Context, p *plan.Plan) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	path, err := exec.LookPath(k.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
	}

	script, err := p.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverError, err)
	}

	runID := uuid.NewString()
	ws, err := NewWorkspace(k.root, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverError, err)
	}
	if err = ws.WriteScript(script); err != nil {
		_ = ws.Remove()
		return nil, fmt.Errorf("%w: %w", ErrDriverError, err)
	}

	out := &outputBuffer{}
	cmd := exec.Command(path, "run", "--quiet", "--out", k6OutputPrefix+ws.OutputPath(), ws.ScriptPath()) //nolint:gosec // arguments are generated paths
	cmd.Dir = ws.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = k6WaitDelay

	if err = cmd.Start(); err != nil {
		_ = ws.Remove()
		return nil, fmt.Errorf("%w: k6 run failed to start: %w", ErrDriverError, err)
	}

	h := &Handle{
		RunID:     runID,
		Plan:      p,
		Workspace: ws,
		StartedAt: time.Now(),
		cmd:       cmd,
		exited:    make(chan struct{}),
		output:    out,
	}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()

	k.logger.Debug("k6 run started",
		zap.String("run_id", runID),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("workspace", ws.Dir),
	)
	return h, nil
}

func (k *K6) Await(ctx context.Context, h *Handle, timeout time.Duration) (Artifact, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if err := k.stop(h); err != nil {
			k.logger.Error("failed to stop cancelled k6 run", zap.String("run_id", h.RunID), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())

	case <-timer.C:
		if err := k.stop(h); err != nil {
			k.logger.Error("failed to stop timed out k6 run", zap.String("run_id", h.RunID), zap.Error(err))
		}
		if h.Workspace.HasOutput() {
			return &StreamArtifact{Path: h.Workspace.OutputPath(), partial: true}, nil
		}
		return nil, fmt.Errorf("%w: %w after %s", ErrDriverError, ErrDriverTimeout, timeout)

	case <-h.exited:
		err := h.waitErr
		if h.Workspace.HasOutput() {
			// k6 exits non-zero when thresholds fail but the stream is complete
			if err != nil {
				k.logger.Debug("k6 exited with error after writing output", zap.String("run_id", h.RunID), zap.Error(err))
			}
			return &StreamArtifact{Path: h.Workspace.OutputPath()}, nil
		}
		if err == nil {
			err = errors.New("no output written")
		}
		return nil, fmt.Errorf("%w: k6 run %s: %w,\noutput: %s", ErrDriverError, h.RunID, err, h.output.Tail(maxOutputTail))
	}
}

func (k *K6) Cleanup(h *Handle) error {
	if h == nil || h.Workspace == nil {
		return nil
	}
	if err := k.stop(h); err != nil {
		k.logger.Warn("k6 process still running during cleanup", zap.String("run_id", h.RunID), zap.Error(err))
	}
	return h.Workspace.Remove()
}

// stop kills the process if it is still running and waits for it to exit.
func (k *K6) stop(h *Handle) error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}

	select {
	case <-h.exited:
		return nil
	default:
	}

	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop k6 run %s: %w", h.RunID, err)
	}
	<-h.exited
	return nil
}

// outputBuffer collects combined stdout and stderr of the k6 process.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf.Bytes()
	if len(data) > n {
		data = data[len(data)-n:]
	}
	return strings.TrimSpace(string(data))
}
