// Package store persists resolved addresses. One row per address is a hard
// invariant enforced here, not assumed by callers.
package store

import (
	"context"
	"errors"

	"ipwatch/internal/lookup/models"
)

var (
	// ErrNotFound keeps store-level misses consistent across the memory
	// and Postgres implementations.
	ErrNotFound = errors.New("record not found")

	// ErrConflict marks a transactional write that lost a race. Conflicts
	// are retried inside Upsert and never reach callers unless exhausted.
	ErrConflict = errors.New("write conflict")
)

// Store is the durable record of previously resolved addresses.
type Store interface {
	// FindByAddress returns the persisted record or ErrNotFound.
	FindByAddress(ctx context.Context, address string) (*models.LookupResult, error)

	// IncrementAndTouch atomically bumps the query count and refreshes the
	// last-queried timestamp of an existing record.
	IncrementAndTouch(ctx context.Context, address string) error

	// Upsert inserts the result with a query count of one, or increments
	// the existing row if a concurrent caller created it first. Transient
	// conflicts are retried up to a fixed bound before surfacing.
	Upsert(ctx context.Context, result *models.LookupResult) error

	// CountRecords reports the number of persisted address records.
	CountRecords(ctx context.Context) (int64, error)

	// AppendLog records one best-effort lookup log row.
	AppendLog(ctx context.Context, entry models.LogEntry) error

	// CountLogs reports the number of lookup log rows.
	CountLogs(ctx context.Context) (int64, error)

	// ClearRecords removes every persisted record. Administrative only.
	ClearRecords(ctx context.Context) error
}
