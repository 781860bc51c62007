package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrChainBroken is returned by Verify when a stored entry does not match
// the hash recorded by its successor.
var ErrChainBroken = errors.New("audit hash chain broken")

// Repository stores audit logs.
type Repository interface {
	// Append stores entry after the current last entry of the chain.
	Append(ctx context.Context, entry Entry) (*Log, error)

	// QueryByEntity returns the logs of one entity, newest first. A limit
	// of 0 returns all of them.
	QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Log, error)

	// QueryByUser returns the logs written by one user, newest first.
	QueryByUser(ctx context.Context, userID string, limit int) ([]*Log, error)

	// Verify walks the whole chain and reports the first broken link.
	Verify(ctx context.Context) error
}

// VerifyChain checks logs given oldest first.
func VerifyChain(logs []*Log) error {
	prev := ""
	for i, l := range logs {
		if l.PreviousHash != prev {
			return fmt.Errorf("%w at entry %d (%s)", ErrChainBroken, i, l.ID)
		}
		prev = l.Hash()
	}
	return nil
}

// InMemoryRepository is a Repository for tests and development.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs []*Log
	now  func() time.Time
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

// Append implements Repository.
func (r *InMemoryRepository) Append(_ context.Context, entry Entry) (*Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := newLog(entry, r.now())
	if n := len(r.logs); n > 0 {
		l.PreviousHash = r.logs[n-1].Hash()
	}
	r.logs = append(r.logs, l)

	out := *l
	return &out, nil
}

func newLog(entry Entry, now time.Time) *Log {
	return &Log{
		ID:         uuid.NewString(),
		UserID:     entry.UserID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    entry.Outcome,
		CreatedAt:  timestamp(now),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
}

// QueryByEntity implements Repository.
func (r *InMemoryRepository) QueryByEntity(_ context.Context, entityType, entityID string, limit int) ([]*Log, error) {
	return r.query(limit, func(l *Log) bool {
		return l.EntityType == entityType && l.EntityID == entityID
	}), nil
}

// QueryByUser implements Repository.
func (r *InMemoryRepository) QueryByUser(_ context.Context, userID string, limit int) ([]*Log, error) {
	return r.query(limit, func(l *Log) bool { return l.UserID == userID }), nil
}

func (r *InMemoryRepository) query(limit int, match func(*Log) bool) []*Log {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []*Log{}
	for i := len(r.logs) - 1; i >= 0; i-- {
		if !match(r.logs[i]) {
			continue
		}
		l := *r.logs[i]
		results = append(results, &l)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// Verify implements Repository.
func (r *InMemoryRepository) Verify(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return VerifyChain(r.logs)
}
