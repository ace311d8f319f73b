package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, "memories_test")
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	gt.NoError(t, repo.EnsureCollection(context.Background(), 768))
	return repo
}

func testVector(seed float32) []float32 {
	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = seed
	}
	vec[0] = 1
	return vec
}

func TestFirestorePutAndGetMemory(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "speaks fluent French",
		Embedding: testVector(0.1),
		Metadata: map[string]string{
			model.MetaUserID: "test-user",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	gt.NoError(t, repo.PutMemory(ctx, memory))

	got, err := repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, memory.Text)
	gt.Equal(t, got.Metadata[model.MetaUserID], "test-user")
	gt.A(t, got.Embedding).Length(768)
}

func TestFirestoreGetMemoryNotFound(t *testing.T) {
	repo := setupFirestore(t)

	_, err := repo.GetMemory(context.Background(), model.MemoryID("non-existent-memory"))
	gt.Error(t, err)
}

func TestFirestoreSearchMemories(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	near := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "works in security engineering",
		Embedding: testVector(0.1),
		Metadata:  map[string]string{model.MetaUserID: "search-user"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	far := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "unrelated record of someone else",
		Embedding: testVector(0.9),
		Metadata:  map[string]string{model.MetaUserID: "other-user"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	gt.NoError(t, repo.PutMemory(ctx, near))
	gt.NoError(t, repo.PutMemory(ctx, far))

	// Wait for Firestore to index
	time.Sleep(2 * time.Second)

	hits, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: testVector(0.1),
		Filter:    map[string]string{model.MetaUserID: "search-user"},
		Limit:     5,
	})
	gt.NoError(t, err)
	gt.A(t, hits).Longer(0)
	for _, hit := range hits {
		gt.Equal(t, hit.Memory.Metadata[model.MetaUserID], "search-user")
	}
}

func TestFirestoreDeleteMemories(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "short-lived record",
		Embedding: testVector(0.5),
		Metadata:  map[string]string{model.MetaUserID: "delete-user"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	gt.NoError(t, repo.PutMemory(ctx, memory))

	gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{memory.ID}))

	_, err := repo.GetMemory(ctx, memory.ID)
	gt.Error(t, err)

	// unknown IDs are ignored
	gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{"never-existed"}))
}
