// Package provider defines the pluggable boundary between the engine and
// backend-specific adapters. The engine ships no cloud adapters; anything
// implementing Adapter can be registered under a provider name.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidemark-io/tidemark/internal/model"
)

// ErrorKind classifies adapter failures for retry decisions.
type ErrorKind int

const (
	// Transient failures are safe to retry (throttling, network resets,
	// timeouts).
	Transient ErrorKind = iota
	// Permanent failures must not be retried (invalid configuration,
	// authorization).
	Permanent
	// NotFound means the remote resource does not exist. During deletes it
	// is treated as already-deleted, not as a failure.
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "Transient"
	case Permanent:
		return "Permanent"
	case NotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the adapter error type. Adapters wrap backend failures in it so
// the executor can apply the retry policy without string sniffing.
type Error struct {
	Kind       ErrorKind
	Op         string
	ResourceID string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s %q: %s: %v", e.Op, e.ResourceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s %q: %s", e.Op, e.ResourceID, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a kind-tagged adapter error.
func Errorf(kind ErrorKind, op, resourceID, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ResourceID: resourceID, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies an arbitrary error. Caller-supplied timeouts surface as
// context.DeadlineExceeded and count as transient unless the adapter tagged
// them otherwise. Untagged errors are treated as permanent: retrying an
// unknown failure against real infrastructure is the riskier default.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Permanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == Transient
}

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == NotFound
}

// Adapter translates generic resource operations into backend-specific
// calls. Calls block on network I/O; every call receives a context carrying
// the caller-supplied timeout.
type Adapter interface {
	// Read fetches the real-world attributes of a resource. exists is false
	// when the resource is absent remotely.
	Read(ctx context.Context, resourceID string) (attrs map[string]any, exists bool, err error)

	// Create provisions the resource and returns the backend handle.
	Create(ctx context.Context, res *model.Resource) (handle string, err error)

	// Update moves a resource from its before attributes to after.
	Update(ctx context.Context, resourceID string, before, after map[string]any) error

	// Delete deprovisions the resource.
	Delete(ctx context.Context, resourceID string) error
}
