// Package history keeps a bounded, newest-first record of past runs and their configs.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/stats"
)

const DefaultCap = 50

var (
	ErrNotFound      = errors.New("history entry not found")
	ErrQuotaExceeded = errors.New("history storage quota exceeded")
)

// Entry is one stored run.
type Entry struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Driver    string             `json:"driver,omitempty"`
	Config    config.TestConfig  `json:"config"`
	Result    *stats.TestResult  `json:"result"`
	Forecast  *forecast.Forecast `json:"forecast,omitempty"`
}

// Repository is a storage backend for entries. List returns newest first.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) error
	// Trim removes everything but the newest keep entries.
	Trim(ctx context.Context, keep int) error
	HealthCheck(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Store applies the retention policy on top of a Repository. Writes are serialized so the
// trim and insert of one record never interleave with another.
type Store struct {
	mu     sync.Mutex
	repo   Repository
	cap    int
	logger *zap.Logger
}

func NewStore(repo Repository, limit int, logger *zap.Logger) *Store {
	if limit <= 0 {
		limit = DefaultCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, cap: limit, logger: logger}
}

// NewEntry captures a finished run.
func NewEntry(report *engine.Report) (*Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create history id: %w", err)
	}
	return &Entry{
		ID:        id.String(),
		Timestamp: time.Now().UTC(),
		Driver:    report.Driver,
		Config:    report.Config.Clone(),
		Result:    report.Result,
		Forecast:  report.Forecast,
	}, nil
}

// Record stores a finished run, keeping at most cap entries. When the backend runs out of
// space the history is cut to half the cap and the write is retried once.
func (s *Store) Record(ctx context.Context, report *engine.Report) (*Entry, error) {
	entry, err := NewEntry(report)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.save(ctx, entry, s.cap)
	if errors.Is(err, ErrQuotaExceeded) {
		half := max(s.cap/2, 1)
		s.logger.Warn("history quota exceeded, keeping fewer entries",
			zap.Int("cap", s.cap),
			zap.Int("retry_cap", half),
		)
		err = s.save(ctx, entry, half)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record history entry: %w", err)
	}
	return entry, nil
}

func (s *Store) save(ctx context.Context, entry *Entry, keep int) error {
	if err := s.repo.Trim(ctx, keep-1); err != nil {
		return err
	}
	return s.repo.Insert(ctx, entry)
}

func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	return s.repo.List(ctx, limit)
}

func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}

// RetryConfig returns the stored config of a run unchanged, ready to be planned again.
func (s *Store) RetryConfig(ctx context.Context, id string) (config.TestConfig, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return config.TestConfig{}, err
	}
	return entry.Config.Clone(), nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.repo.Disconnect(ctx)
}

func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode history entry: %w", err)
	}
	return &e, nil
}
