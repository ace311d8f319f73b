// Package repository provides the vector store boundary of the memory
// pipeline and its backends: Firestore (managed), chromem (embedded,
// pure Go), and Qdrant (REST).
package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
)

// ErrMemoryNotFound is returned by GetMemory when no memory exists for
// the given ID.
var ErrMemoryNotFound = goerr.New("memory not found")

const defaultSearchLimit = 5

// Repository defines the interface for memory persistence and similarity
// search. All implementations key records by memory ID and treat metadata
// as an opaque string map queried only by exact match.
type Repository interface {
	// EnsureCollection prepares the underlying collection for vectors of
	// the given dimension. It is idempotent.
	EnsureCollection(ctx context.Context, dimension int) error

	// PutMemory inserts or replaces a memory by its ID
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// SearchMemories performs a filtered vector similarity search
	SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*SearchHit, error)

	// DeleteMemories removes memories by ID; unknown IDs are ignored
	DeleteMemories(ctx context.Context, ids []model.MemoryID) error
}

// SearchMemoriesInput parameterizes a similarity search.
type SearchMemoriesInput struct {
	Embedding []float32
	// Filter is an exact-match conjunction over metadata fields
	Filter map[string]string
	Limit  int
	// Threshold is the minimum similarity score to include; 0 disables it
	Threshold float64
}

// SearchHit is one search result with its cosine similarity score
// (higher is more similar).
type SearchHit struct {
	Memory *model.Memory
	Score  float64
}
