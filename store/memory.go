package store

import (
	"context"
	"sync"
	"time"
)

// memoryPruneInterval is the most often MarkSpent scans for expired nonces.
const memoryPruneInterval = time.Minute

// MemoryStore keeps nonces in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	spent     map[string]time.Time
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
}

var _ NonceStore = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store. A zero retention keeps nonces forever.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		spent:     make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// IsSpent reports whether the nonce has been consumed and not yet expired.
func (s *MemoryStore) IsSpent(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, ErrEmptyNonce
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	spentAt, ok := s.spent[nonce]
	if !ok {
		return false, nil
	}
	return !s.expired(spentAt), nil
}

// MarkSpent records the nonce.
func (s *MemoryStore) MarkSpent(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrEmptyNonce
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if spentAt, ok := s.spent[nonce]; ok && !s.expired(spentAt) {
		return nil
	}
	s.spent[nonce] = s.now()
	s.prune()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) expired(spentAt time.Time) bool {
	return s.retention > 0 && s.now().Sub(spentAt) >= s.retention
}

// prune drops expired entries at most once per interval, the shorter of the
// retention and memoryPruneInterval. Must be called with the lock held.
func (s *MemoryStore) prune() {
	if s.retention <= 0 {
		return
	}
	interval := min(s.retention, memoryPruneInterval)
	now := s.now()
	if now.Sub(s.lastPrune) < interval {
		return
	}
	s.lastPrune = now

	for nonce, spentAt := range s.spent {
		if s.expired(spentAt) {
			delete(s.spent, nonce)
		}
	}
}
