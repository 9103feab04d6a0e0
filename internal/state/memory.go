package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidemark-io/tidemark/internal/model"
)

// MemoryStore is an in-process Store for tests and ephemeral runs. Each
// record carries its own lock, so writes to different resource ids only
// contend on the brief map lookup.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	closed  bool
}

type memEntry struct {
	mu  sync.Mutex
	rec *model.RecordedState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

func (s *MemoryStore) entry(resourceID string, create bool) (*memEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.entries[resourceID]
	if !ok && create {
		e = &memEntry{}
		s.entries[resourceID] = e
	}
	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, resourceID string) (*model.RecordedState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.entry(resourceID, false)
	if err != nil || e == nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *model.RecordedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.entry(rec.ResourceID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := rec.Clone()
	if e.rec == nil {
		stored.Version = 0
	} else {
		stored.Version = e.rec.Version + 1
	}
	if stored.AppliedAt.IsZero() {
		stored.AppliedAt = time.Now().UTC()
	}
	e.rec = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.entries, resourceID)
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *model.RecordedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.entry(rec.ResourceID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	actual := model.VersionNone
	if e.rec != nil {
		actual = e.rec.Version
	}
	if actual != expectedVersion {
		return &ConflictError{
			ResourceID:      rec.ResourceID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}

	stored := rec.Clone()
	stored.Version = expectedVersion + 1
	if stored.AppliedAt.IsZero() {
		stored.AppliedAt = time.Now().UTC()
	}
	e.rec = stored
	return nil
}

func (s *MemoryStore) List(ctx context.Context, fn func(*model.RecordedState) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			continue // deleted between snapshot and read
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
