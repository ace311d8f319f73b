// Package memory implements the reconciliation pipeline: conversation
// text is distilled into atomic facts, the facts are matched against
// stored memories by similarity search, and an LLM decides per fact
// whether to add, update, delete, or keep. Every LLM, embedding, and
// parse failure degrades to "this turn contributes no memory change";
// none of them crosses the Write/Search boundary as an error.
package memory

import (
	"github.com/m-mizutani/tamias/pkg/adapter"
	"github.com/m-mizutani/tamias/pkg/repository"
)

const defaultRetrieveLimit = 5

// UseCase wires the pipeline stages to their external dependencies.
type UseCase struct {
	repo     repository.Repository
	llm      adapter.LLM
	embedder adapter.Embedder
	storage  adapter.Storage

	retrieveLimit int
	threshold     float64
}

// Option configures a UseCase
type Option func(*UseCase)

// WithTranscriptStorage enables best-effort archival of raw conversation
// transcripts before the pipeline runs.
func WithTranscriptStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithRetrieveLimit overrides the per-fact candidate search limit.
func WithRetrieveLimit(limit int) Option {
	return func(uc *UseCase) {
		if limit > 0 {
			uc.retrieveLimit = limit
		}
	}
}

// WithScoreThreshold sets the minimum similarity score for candidate
// retrieval and search. Zero keeps every hit.
func WithScoreThreshold(threshold float64) Option {
	return func(uc *UseCase) {
		uc.threshold = threshold
	}
}

// New creates a memory pipeline bound to the given store and backends.
func New(repo repository.Repository, llm adapter.LLM, embedder adapter.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:          repo,
		llm:           llm,
		embedder:      embedder,
		retrieveLimit: defaultRetrieveLimit,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}
