package driver

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	workspacePrefix = "loadtest-"
	scriptFile      = "script.js"
	outputFile      = "results.json"
)

// Workspace is the private artifact directory of one run, named after its run id so concurrent
// runs never share files.
type Workspace struct {
	Dir string
}

func NewWorkspace(root, runID string) (*Workspace, error) {
	dir := filepath.Join(root, workspacePrefix+runID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create run workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

func (w *Workspace) ScriptPath() string { return filepath.Join(w.Dir, scriptFile) }
func (w *Workspace) OutputPath() string { return filepath.Join(w.Dir, outputFile) }

func (w *Workspace) WriteScript(script []byte) error {
	if err := os.WriteFile(w.ScriptPath(), script, 0o600); err != nil {
		return fmt.Errorf("failed to write k6 script: %w", err)
	}
	return nil
}

// HasOutput reports whether the driver wrote a non-empty measurement file.
func (w *Workspace) HasOutput() bool {
	info, err := os.Stat(w.OutputPath())
	return err == nil && info.Size() > 0
}

func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove run workspace %s: %w", w.Dir, err)
	}
	return nil
}
