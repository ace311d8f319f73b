package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Metadata keys written by the pipeline itself. Everything else in a
// memory's metadata is opaque pass-through from the caller.
const (
	MetaUserID  = "user_id"
	MetaAgentID = "agent_id"
)

// Memory is the persisted unit of the memory store: one natural-language
// statement with the embedding of its current text. Text and Embedding are
// always replaced together; the ID is stable across updates and never
// reused after deletion.
type Memory struct {
	ID        MemoryID
	Text      string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchResult is a read-only view of a memory returned by similarity
// search, with its similarity score (higher is closer).
type SearchResult struct {
	ID       MemoryID          `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
