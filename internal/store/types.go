// Package store persists translation-memory entries in a columnar SQLite
// table with a fixed-length vector column, and serves vector-distance
// queries through an HNSW graph kept in memory over the stored rows.
package store

import (
	"context"

	"github.com/rmraya/hybridtm/internal/tm"
)

// Hit is a vector-search result: the hydrated entry and its reported
// distance. Distance is Euclidean over unit-length vectors (range 0..2),
// ascending means more similar.
type Hit struct {
	Entry    *tm.Entry
	Distance float64
}

// VectorStore is the contract the engine requires from the storage layer.
type VectorStore interface {
	// CreateTable creates the entry table with a vector column of the
	// given dimension. Idempotent when the dimension matches; a different
	// dimension on an existing table is rejected.
	CreateTable(ctx context.Context, dim int) error

	// Dimension returns the vector dimension fixed at table creation,
	// or 0 when the table has not been created yet.
	Dimension() int

	// VectorSearch returns rows ordered by vector distance ascending.
	// A nil predicate matches everything; limit <= 0 returns every row.
	VectorSearch(ctx context.Context, query []float32, pred Predicate, limit int) ([]Hit, error)

	// Query returns rows matching the predicate, without distance ordering.
	// limit <= 0 returns every matching row.
	Query(ctx context.Context, pred Predicate, limit int) ([]*tm.Entry, error)

	// UpsertBatch inserts rows atomically. Callers delete existing IDs
	// first; a conflicting ID fails the batch.
	UpsertBatch(ctx context.Context, entries []*tm.Entry) error

	// DeleteWhere removes rows matching the predicate and reports how
	// many were removed.
	DeleteWhere(ctx context.Context, pred Predicate) (int64, error)

	// Count returns the number of stored rows.
	Count(ctx context.Context) (int64, error)

	// CountByLanguage returns the number of stored rows per language tag.
	CountByLanguage(ctx context.Context) (map[string]int64, error)

	// Close releases the connection and the store lock. Idempotent.
	Close() error
}
