package repository

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

// Chromem implements Repository on chromem-go, a pure Go embedded vector
// database. It serves local development and tests without any external
// service.
type Chromem struct {
	db   *chromem.DB
	name string

	mu  sync.Mutex
	col *chromem.Collection
}

// Timestamps ride along in the document metadata since chromem documents
// have no dedicated fields for them.
const (
	chromemCreatedAtKey = "created_at"
	chromemUpdatedAtKey = "updated_at"
)

// NewChromem creates an in-memory chromem repository
func NewChromem(collection string) (*Chromem, error) {
	if collection == "" {
		return nil, goerr.New("collection name is required")
	}
	return &Chromem{
		db:   chromem.NewDB(),
		name: collection,
	}, nil
}

// NewPersistentChromem creates a chromem repository persisted under the
// given directory
func NewPersistentChromem(path, collection string) (*Chromem, error) {
	if collection == "" {
		return nil, goerr.New("collection name is required")
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem database", goerr.Value("path", path))
	}
	return &Chromem{
		db:   db,
		name: collection,
	}, nil
}

// EnsureCollection creates the collection if absent. chromem infers the
// dimension from the first stored vector, so the argument is validated
// only.
func (r *Chromem) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.Value("dimension", dimension))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.col != nil {
		return nil
	}

	col, err := r.db.GetOrCreateCollection(r.name, nil, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create chromem collection", goerr.Value("collection", r.name))
	}
	r.col = col
	return nil
}

func (r *Chromem) collection() (*chromem.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.col == nil {
		col, err := r.db.GetOrCreateCollection(r.name, nil, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem collection", goerr.Value("collection", r.name))
		}
		r.col = col
	}
	return r.col, nil
}

func (r *Chromem) PutMemory(ctx context.Context, memory *model.Memory) error {
	if memory.ID == "" {
		return goerr.New("memory ID is required")
	}

	col, err := r.collection()
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(memory.Metadata)+2)
	for k, v := range memory.Metadata {
		metadata[k] = v
	}
	metadata[chromemCreatedAtKey] = memory.CreatedAt.UTC().Format(time.RFC3339Nano)
	metadata[chromemUpdatedAtKey] = memory.UpdatedAt.UTC().Format(time.RFC3339Nano)

	doc := chromem.Document{
		ID:        string(memory.ID),
		Content:   memory.Text,
		Embedding: memory.Embedding,
		Metadata:  metadata,
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add chromem document", goerr.Value("memory_id", memory.ID))
	}

	return nil
}

func (r *Chromem) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	col, err := r.collection()
	if err != nil {
		return nil, err
	}

	doc, err := col.GetByID(ctx, string(id))
	if err != nil {
		return nil, goerr.Wrap(ErrMemoryNotFound, "memory not found", goerr.Value("memory_id", id))
	}

	return chromemDocToMemory(doc), nil
}

func (r *Chromem) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*SearchHit, error) {
	if len(input.Embedding) == 0 {
		return nil, goerr.New("search embedding is empty")
	}

	col, err := r.collection()
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	// chromem rejects nResults above the collection size
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if limit > count {
		limit = count
	}

	var where map[string]string
	if len(input.Filter) > 0 {
		where = input.Filter
	}

	results, err := col.QueryEmbedding(ctx, input.Embedding, limit, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chromem collection")
	}

	hits := make([]*SearchHit, 0, len(results))
	for _, result := range results {
		score := float64(result.Similarity)
		if input.Threshold > 0 && score < input.Threshold {
			continue
		}
		hits = append(hits, &SearchHit{
			Memory: chromemDocToMemory(chromem.Document{
				ID:        result.ID,
				Content:   result.Content,
				Embedding: result.Embedding,
				Metadata:  result.Metadata,
			}),
			Score: score,
		})
	}

	return hits, nil
}

func (r *Chromem) DeleteMemories(ctx context.Context, ids []model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := r.collection()
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}

	if err := col.Delete(ctx, nil, nil, raw...); err != nil {
		return goerr.Wrap(err, "failed to delete chromem documents")
	}

	return nil
}

func chromemDocToMemory(doc chromem.Document) *model.Memory {
	memory := &model.Memory{
		ID:        model.MemoryID(doc.ID),
		Text:      doc.Content,
		Embedding: doc.Embedding,
		Metadata:  make(map[string]string, len(doc.Metadata)),
	}

	for k, v := range doc.Metadata {
		switch k {
		case chromemCreatedAtKey:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				memory.CreatedAt = t
			}
		case chromemUpdatedAtKey:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				memory.UpdatedAt = t
			}
		default:
			memory.Metadata[k] = v
		}
	}

	return memory
}
