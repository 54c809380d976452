package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is a single recorded admission decision.
type Entry struct {
	// ID uniquely identifies the entry (UUID v4).
	ID string `json:"id"`

	// Timestamp is the wall-clock time the decision was taken.
	Timestamp time.Time `json:"timestamp"`

	// Policy is the name of the policy that decided.
	Policy string `json:"policy"`

	// Key is the rate-limited identity.
	Key string `json:"key"`

	// Allowed is the admission outcome.
	Allowed bool `json:"allowed"`

	// RetryAfter is the wait reported with the decision.
	RetryAfter time.Duration `json:"retry_after"`
}

// NewEntry creates an Entry with a fresh ID and the current time.
func NewEntry(policy, key string, allowed bool, retryAfter time.Duration) *Entry {
	return &Entry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Policy:     policy,
		Key:        key,
		Allowed:    allowed,
		RetryAfter: retryAfter,
	}
}

// Query filters journal entries. Zero-valued fields match everything.
type Query struct {
	// Policy restricts results to one policy.
	Policy string

	// Key restricts results to one key.
	Key string

	// Since excludes entries older than this time.
	Since time.Time

	// Until excludes entries at or after this time.
	Until time.Time

	// Allowed restricts results to admitted (true) or denied (false) entries.
	Allowed *bool

	// Limit caps the number of results. Zero means DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit is applied when Query.Limit is zero.
const DefaultQueryLimit = 100

// Matches reports whether e satisfies the query filters.
func (q *Query) Matches(e *Entry) bool {
	if q.Policy != "" && e.Policy != q.Policy {
		return false
	}
	if q.Key != "" && e.Key != q.Key {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.Timestamp.Before(q.Until) {
		return false
	}
	if q.Allowed != nil && e.Allowed != *q.Allowed {
		return false
	}
	return true
}

func (q *Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores an entry.
	Append(ctx context.Context, entry *Entry) error

	// Query returns matching entries, newest first.
	Query(ctx context.Context, query *Query) ([]*Entry, error)

	// Count returns the number of matching entries, ignoring Query.Limit.
	Count(ctx context.Context, query *Query) (int64, error)

	// Prune deletes entries older than olderThan and returns how many were deleted.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases resources. The store must not be used afterwards.
	Close() error
}

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("journal store closed")

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("append", "query", "prune", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("journal storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
