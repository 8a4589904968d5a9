package catalog

import (
	"context"
	"sync"
)

// MemoryRepository is the catalog used when no MongoDB is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryRepository(entries ...Entry) *MemoryRepository {
	r := &MemoryRepository{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.Barcode] = e
	}
	return r
}

func (r *MemoryRepository) FindByBarcode(_ context.Context, barcode string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[barcode]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.Barcode] = *entry
	return nil
}
