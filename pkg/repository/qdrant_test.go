package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
)

// fakeQdrant is a minimal in-process stand-in for the Qdrant REST API,
// covering the endpoints the repository uses.
type fakeQdrant struct {
	collections map[string]int // name -> dimension
	points      map[string]fakePoint
}

type fakePoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: map[string]int{},
		points:      map[string]fakePoint{},
	}
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.collections[r.PathValue("name")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Collection not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})

	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.collections[r.PathValue("name")] = body.Vectors.Size
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})

	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []fakePoint `json:"points"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})

	mux.HandleFunc("POST /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		result := []fakePoint{}
		for _, id := range body.IDs {
			if p, ok := f.points[id]; ok {
				result = append(result, p)
			}
		}
		writeFakeResult(t, w, result)
	})

	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
			Filter *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		type scored struct {
			fakePoint
			Score float64 `json:"score"`
		}
		result := []scored{}
		for _, p := range f.points {
			if body.Filter != nil && !matchesFilter(p.Payload, body.Filter.Must) {
				continue
			}
			result = append(result, scored{fakePoint: p, Score: dot(body.Vector, p.Vector)})
		}
		if len(result) > body.Limit {
			result = result[:body.Limit]
		}
		writeFakeResult(t, w, result)
	})

	mux.HandleFunc("POST /collections/{name}/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []string `json:"points"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, id := range body.Points {
			delete(f.points, id)
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})

	return mux
}

func matchesFilter(payload map[string]any, must []struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}) bool {
	meta, _ := payload["metadata"].(map[string]any)
	for _, cond := range must {
		key := cond.Key
		if len(key) > len("metadata.") && key[:len("metadata.")] == "metadata." {
			key = key[len("metadata."):]
		}
		if meta == nil || meta[key] != cond.Match.Value {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func writeFakeResult(t *testing.T, w http.ResponseWriter, result any) {
	encoded, err := json.Marshal(map[string]any{
		"status": "ok",
		"result": result,
	})
	gt.NoError(t, err)
	_, _ = w.Write(encoded)
}

func setupQdrant(t *testing.T) (*repository.Qdrant, *fakeQdrant) {
	fake := newFakeQdrant()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	return repository.NewQdrant(server.URL, "", "memories"), fake
}

func TestQdrantEnsureCollection(t *testing.T) {
	repo, fake := setupQdrant(t)
	ctx := context.Background()

	gt.NoError(t, repo.EnsureCollection(ctx, 4))
	gt.Equal(t, fake.collections["memories"], 4)

	// second call must be a no-op, not an error
	gt.NoError(t, repo.EnsureCollection(ctx, 4))
}

func TestQdrantPutGetRoundtrip(t *testing.T) {
	repo, _ := setupQdrant(t)
	ctx := context.Background()
	gt.NoError(t, repo.EnsureCollection(ctx, 4))

	now := time.Now().UTC().Truncate(time.Second)
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      "prefers tea over coffee",
		Embedding: []float32{1, 0, 0, 0},
		Metadata: map[string]string{
			model.MetaUserID:  "u1",
			model.MetaAgentID: "a1",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	gt.NoError(t, repo.PutMemory(ctx, memory))

	got, err := repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, "prefers tea over coffee")
	gt.Equal(t, got.Metadata[model.MetaUserID], "u1")
	gt.Equal(t, got.Embedding, []float32{1, 0, 0, 0})
	gt.B(t, got.CreatedAt.Equal(now)).True()
}

func TestQdrantGetNotFound(t *testing.T) {
	repo, _ := setupQdrant(t)
	ctx := context.Background()
	gt.NoError(t, repo.EnsureCollection(ctx, 4))

	_, err := repo.GetMemory(ctx, model.MemoryID("missing"))
	gt.Error(t, err)
	gt.B(t, errors.Is(err, repository.ErrMemoryNotFound)).True()
}

func TestQdrantSearchWithFilter(t *testing.T) {
	repo, _ := setupQdrant(t)
	ctx := context.Background()
	gt.NoError(t, repo.EnsureCollection(ctx, 4))

	now := time.Now().UTC()
	for _, rec := range []struct {
		user string
		text string
		vec  []float32
	}{
		{"u1", "plays tennis", []float32{1, 0, 0, 0}},
		{"u1", "lives in Kyoto", []float32{0, 1, 0, 0}},
		{"u2", "plays tennis too", []float32{1, 0, 0, 0}},
	} {
		gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
			ID:        model.NewMemoryID(),
			Text:      rec.text,
			Embedding: rec.vec,
			Metadata:  map[string]string{model.MetaUserID: rec.user},
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	hits, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: []float32{1, 0, 0, 0},
		Filter:    map[string]string{model.MetaUserID: "u1"},
		Limit:     10,
	})
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	for _, hit := range hits {
		gt.Equal(t, hit.Memory.Metadata[model.MetaUserID], "u1")
	}
}

func TestQdrantDelete(t *testing.T) {
	repo, fake := setupQdrant(t)
	ctx := context.Background()
	gt.NoError(t, repo.EnsureCollection(ctx, 4))

	id := model.NewMemoryID()
	now := time.Now().UTC()
	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        id,
		Text:      "temporary",
		Embedding: []float32{0, 0, 1, 0},
		Metadata:  map[string]string{model.MetaUserID: "u1"},
		CreatedAt: now,
		UpdatedAt: now,
	}))
	gt.A(t, mapKeys(fake.points)).Length(1)

	gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{id, "unknown"}))
	gt.A(t, mapKeys(fake.points)).Length(0)
}

func mapKeys(m map[string]fakePoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
