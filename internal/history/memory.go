package history

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in process. MaxBytes, when positive, bounds the encoded size
// of all entries and makes Insert fail with ErrQuotaExceeded beyond it.
type MemoryRepository struct {
	mu       sync.RWMutex
	entries  [][]byte
	ids      []string
	MaxBytes int
}

func NewMemoryRepository(maxBytes int) *MemoryRepository {
	return &MemoryRepository{MaxBytes: maxBytes}
}

func (r *MemoryRepository) Insert(_ context.Context, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.MaxBytes > 0 && r.size()+len(data) > r.MaxBytes {
		return ErrQuotaExceeded
	}
	r.entries = append([][]byte{data}, r.entries...)
	r.ids = append([]string{e.ID}, r.ids...)
	return nil
}

func (r *MemoryRepository) size() int {
	total := 0
	for _, data := range r.entries {
		total += len(data)
	}
	return total
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for _, data := range r.entries[:n] {
		e, err := decodeEntry(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, existing := range r.ids {
		if existing == id {
			return decodeEntry(r.entries[i])
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries, r.ids = nil, nil
	return nil
}

func (r *MemoryRepository) Trim(_ context.Context, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep = max(keep, 0)
	if len(r.entries) > keep {
		r.entries = r.entries[:keep]
		r.ids = r.ids[:keep]
	}
	return nil
}

func (r *MemoryRepository) HealthCheck(context.Context) error { return nil }

func (r *MemoryRepository) Disconnect(context.Context) error { return nil }
