// Package history keeps an append-only log of scored claims.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/resilience"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// Entry is one scored claim. The claim and result fields are flattened into
// a single JSON object.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	scoring.ClaimRecord
	scoring.PredictionResult
}

// NewEntry stamps a record and its result with a fresh ID and the UTC time.
func NewEntry(record scoring.ClaimRecord, result scoring.PredictionResult, now time.Time) Entry {
	return Entry{
		ID:               uuid.NewString(),
		Timestamp:        now.UTC(),
		ClaimRecord:      record,
		PredictionResult: result,
	}
}

// Store persists entries in insertion order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendCSV:
		return NewCSVStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown history backend %q", backend)
}

// WithRetry retries failed appends with backoff. Reads are not retried.
func WithRetry(s Store, cfg resilience.RetryConfig) Store {
	return &retryStore{Store: s, cfg: cfg}
}

type retryStore struct {
	Store
	cfg resilience.RetryConfig
}

func (r *retryStore) Append(ctx context.Context, e Entry) error {
	return resilience.RetryWithConfig(ctx, r.cfg, func() error {
		return r.Store.Append(ctx, e)
	})
}
