// Package state persists the engine's durable record of last-applied
// resource state. All mutation is atomic per resource id; concurrent writes
// to different ids never block each other, and optimistic version checks via
// CompareAndSwap are the sole cross-run correctness mechanism.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidemark-io/tidemark/internal/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("state store is closed")

// ConflictError reports a compare-and-swap against a stale version: another
// reconciliation run mutated the resource concurrently.
type ConflictError struct {
	ResourceID      string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: expected %d, stored %d",
		e.ResourceID, e.ExpectedVersion, e.ActualVersion)
}

// IsConflict reports whether err is a compare-and-swap conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Store is the contract every state backend implements.
//
// Versioning: a record's version starts at 0 on first creation and is bumped
// by 1 on every successful Put or CompareAndSwap.
type Store interface {
	// Get returns the record for a resource id, or (nil, nil) if absent.
	Get(ctx context.Context, resourceID string) (*model.RecordedState, error)

	// Put writes a record unconditionally, assigning the next version.
	// Writes to the same resource id serialize; writes to different ids do
	// not block each other.
	Put(ctx context.Context, rec *model.RecordedState) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, resourceID string) error

	// CompareAndSwap writes rec only if the stored version equals
	// expectedVersion (model.VersionNone means the record must not exist).
	// On success the new version is expectedVersion+1. A stale expectation
	// fails with *ConflictError.
	CompareAndSwap(ctx context.Context, expectedVersion int64, rec *model.RecordedState) error

	// List streams every record in stable resource-id order. It is finite
	// and restartable; backends page internally over large inventories.
	// Iteration stops early when fn returns an error.
	List(ctx context.Context, fn func(*model.RecordedState) error) error

	Close() error
}
