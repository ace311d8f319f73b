package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
)

func setupChromem(t *testing.T) *repository.Chromem {
	repo, err := repository.NewChromem("memories")
	gt.NoError(t, err)
	gt.NoError(t, repo.EnsureCollection(context.Background(), 4))
	return repo
}

func unitVec(axis int) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	return v
}

func TestChromemPutAndGet(t *testing.T) {
	repo := setupChromem(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "lives in Osaka",
		Embedding: unitVec(0),
		Metadata: map[string]string{
			model.MetaUserID: "u1",
			"session_id":     "s1",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	gt.NoError(t, repo.PutMemory(ctx, memory))

	got, err := repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, "lives in Osaka")
	gt.Equal(t, got.Metadata[model.MetaUserID], "u1")
	gt.Equal(t, got.Metadata["session_id"], "s1")
	gt.A(t, got.Embedding).Length(4)
	gt.B(t, got.CreatedAt.Equal(now)).True()
}

func TestChromemGetNotFound(t *testing.T) {
	repo := setupChromem(t)

	_, err := repo.GetMemory(context.Background(), model.MemoryID("no-such-id"))
	gt.Error(t, err)
	gt.B(t, errors.Is(err, repository.ErrMemoryNotFound)).True()
}

func TestChromemUpsertReplacesTextAndVector(t *testing.T) {
	repo := setupChromem(t)
	ctx := context.Background()

	id := model.NewMemoryID()
	now := time.Now().UTC()
	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        id,
		Text:      "works as a software engineer",
		Embedding: unitVec(0),
		Metadata:  map[string]string{model.MetaUserID: "u1"},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        id,
		Text:      "works as a product manager",
		Embedding: unitVec(1),
		Metadata:  map[string]string{model.MetaUserID: "u1"},
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
	}))

	got, err := repo.GetMemory(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, "works as a product manager")
	// vector must match the new text, not the old one
	gt.Equal(t, got.Embedding, unitVec(1))

	hits, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: unitVec(1),
		Filter:    map[string]string{model.MetaUserID: "u1"},
		Limit:     5,
	})
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Memory.ID, id)
}

func TestChromemSearchFilterIsolation(t *testing.T) {
	repo := setupChromem(t)
	ctx := context.Background()

	now := time.Now().UTC()
	putMemory := func(userID, text string, axis int) model.MemoryID {
		id := model.NewMemoryID()
		gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
			ID:        id,
			Text:      text,
			Embedding: unitVec(axis),
			Metadata:  map[string]string{model.MetaUserID: userID},
			CreatedAt: now,
			UpdatedAt: now,
		}))
		return id
	}

	putMemory("a", "memory of user a", 0)
	closest := putMemory("b", "memory of user b", 1)

	// Query along user b's vector but filter to user a: the closest match
	// in the whole collection must not leak through.
	hits, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: unitVec(1),
		Filter:    map[string]string{model.MetaUserID: "a"},
		Limit:     10,
	})
	gt.NoError(t, err)
	for _, hit := range hits {
		gt.Equal(t, hit.Memory.Metadata[model.MetaUserID], "a")
		if hit.Memory.ID == closest {
			t.Errorf("search leaked a record across the user filter")
		}
	}
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	repo := setupChromem(t)

	hits, err := repo.SearchMemories(context.Background(), &repository.SearchMemoriesInput{
		Embedding: unitVec(0),
		Limit:     5,
	})
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemSearchLimitAboveCount(t *testing.T) {
	repo := setupChromem(t)
	ctx := context.Background()

	now := time.Now().UTC()
	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "only record",
		Embedding: unitVec(2),
		Metadata:  map[string]string{model.MetaUserID: "u1"},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	// limit above the collection size must not error
	hits, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: unitVec(2),
		Limit:     100,
	})
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
}

func TestChromemDelete(t *testing.T) {
	repo := setupChromem(t)
	ctx := context.Background()

	id := model.NewMemoryID()
	now := time.Now().UTC()
	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        id,
		Text:      "to be deleted",
		Embedding: unitVec(3),
		Metadata:  map[string]string{model.MetaUserID: "u1"},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{id}))

	_, err := repo.GetMemory(ctx, id)
	gt.Error(t, err)

	// deleting an unknown ID is a no-op
	gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{"never-existed"}))
}
