package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Repository using Firestore documents with a
// Vector32 embedding field and FindNearest search.
type Firestore struct {
	client     *firestore.Client
	collection string
	dimension  int
}

// distanceField is the document field FindNearest writes the cosine
// distance into.
const distanceField = "vector_distance"

// memoryDoc is the Firestore document shape of a memory
type memoryDoc struct {
	Text      string             `firestore:"text"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	Metadata  map[string]string  `firestore:"metadata"`
	CreatedAt time.Time          `firestore:"created_at"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required")
	}
	if collection == "" {
		return nil, goerr.New("collection name is required")
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &Firestore{
		client:     client,
		collection: collection,
	}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

// EnsureCollection records the expected dimension. Firestore creates
// collections implicitly on first write; the vector index itself is
// provisioned out of band (gcloud firestore indexes).
func (r *Firestore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.Value("dimension", dimension))
	}
	r.dimension = dimension
	return nil
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.Memory) error {
	if memory.ID == "" {
		return goerr.New("memory ID is required")
	}

	doc := &memoryDoc{
		Text:      memory.Text,
		Embedding: firestore.Vector32(memory.Embedding),
		Metadata:  memory.Metadata,
		CreatedAt: memory.CreatedAt,
		UpdatedAt: memory.UpdatedAt,
	}

	if _, err := r.client.Collection(r.collection).Doc(string(memory.ID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.Value("memory_id", memory.ID))
	}

	return nil
}

func (r *Firestore) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	snap, err := r.client.Collection(r.collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrMemoryNotFound, "memory not found", goerr.Value("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.Value("memory_id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory document")
	}

	return doc.toMemory(id), nil
}

func (r *Firestore) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*SearchHit, error) {
	if len(input.Embedding) == 0 {
		return nil, goerr.New("search embedding is empty")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query := r.client.Collection(r.collection).Query
	for key, value := range input.Filter {
		query = query.Where("metadata."+key, "==", value)
	}

	vectorQuery := query.FindNearest(
		"embedding",
		firestore.Vector32(input.Embedding),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: distanceField,
		},
	)

	iter := vectorQuery.Documents(ctx)
	defer iter.Stop()

	var hits []*SearchHit
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate search results")
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode search result")
		}

		// cosine distance is in [0, 2]; score = 1 - distance
		score := 1.0
		if d, ok := snap.Data()[distanceField].(float64); ok {
			score = 1.0 - d
		}
		if input.Threshold > 0 && score < input.Threshold {
			continue
		}

		hits = append(hits, &SearchHit{
			Memory: doc.toMemory(model.MemoryID(snap.Ref.ID)),
			Score:  score,
		})
	}

	return hits, nil
}

func (r *Firestore) DeleteMemories(ctx context.Context, ids []model.MemoryID) error {
	for _, id := range ids {
		// Delete succeeds even when the document does not exist
		if _, err := r.client.Collection(r.collection).Doc(string(id)).Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete memory", goerr.Value("memory_id", id))
		}
	}
	return nil
}

func (d *memoryDoc) toMemory(id model.MemoryID) *model.Memory {
	return &model.Memory{
		ID:        id,
		Text:      d.Text,
		Embedding: []float32(d.Embedding),
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
