package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository stores the whole history as one JSON array, newest first.
type FileRepository struct {
	mu       sync.Mutex
	path     string
	maxBytes int
}

// DefaultFileQuota mirrors the few megabytes a browser grants local storage.
const DefaultFileQuota = 5 << 20

func NewFileRepository(path string, maxBytes int) *FileRepository {
	return &FileRepository{path: path, maxBytes: maxBytes}
}

func (r *FileRepository) load() ([]Entry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *FileRepository) store(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if r.maxBytes > 0 && len(data) > r.maxBytes {
		return ErrQuotaExceeded
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func (r *FileRepository) Insert(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	return r.store(append([]Entry{*e}, entries...))
}

func (r *FileRepository) List(_ context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (r *FileRepository) Get(_ context.Context, id string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return false, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return true, r.store(append(entries[:i], entries[i+1:]...))
		}
	}
	return false, nil
}

func (r *FileRepository) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}
	return nil
}

func (r *FileRepository) Trim(_ context.Context, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	keep = max(keep, 0)
	if len(entries) <= keep {
		return nil
	}
	return r.store(entries[:keep])
}

func (r *FileRepository) HealthCheck(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.load()
	return err
}

func (r *FileRepository) Disconnect(context.Context) error { return nil }
