package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	record    Record
	expiresAt time.Time
}

// InMemoryRepository is a per-process Repository.
type InMemoryRepository struct {
	mu      sync.Mutex
	records map[string]entry
	now     func() time.Time
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]entry), now: time.Now}
}

// Get implements Repository. Expired records are not returned.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[key]
	if !ok || !r.now().Before(e.expiresAt) {
		return nil, ErrKeyNotFound
	}
	rec := e.record
	return &rec, nil
}

// Store implements Repository.
func (r *InMemoryRepository) Store(_ context.Context, rec *Record, ttl time.Duration) error {
	if err := ValidateKey(rec.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.records[rec.Key]; ok && now.Before(e.expiresAt) {
		return ErrKeyExists
	}
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now.UTC()
	}
	r.records[rec.Key] = entry{record: stored, expiresAt: now.Add(ttl)}
	return nil
}

// DeleteExpired drops expired records and returns how many it removed.
func (r *InMemoryRepository) DeleteExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	deleted := 0
	for key, e := range r.records {
		if !now.Before(e.expiresAt) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of stored records, expired ones included.
func (r *InMemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// RunCleanup calls DeleteExpired every interval until ctx is done.
func (r *InMemoryRepository) RunCleanup(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.DeleteExpired(); n > 0 {
				logger.Debug("cleaned up idempotency keys", "deleted", n)
			}
		}
	}
}
