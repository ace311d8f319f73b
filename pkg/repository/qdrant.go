package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
)

// Qdrant implements Repository against the Qdrant REST API. It speaks the
// plain HTTP API directly; the surface needed here (ensure, upsert,
// filtered search, delete) is small enough that a client dependency buys
// nothing.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

// NewQdrant creates a Qdrant-backed repository
func NewQdrant(baseURL, apiKey, collection string) *Qdrant {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// qdrantStatus accepts both `status: "ok"` and `status: {"error": "..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

// payload field names within a point
const (
	qdrantTextKey      = "text"
	qdrantMetadataKey  = "metadata"
	qdrantCreatedAtKey = "created_at"
	qdrantUpdatedAtKey = "updated_at"
)

func (r *Qdrant) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal qdrant request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create qdrant request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("api-key", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call qdrant", goerr.Value("path", path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return goerr.Wrap(err, "failed to read qdrant response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env qdrantEnvelope[json.RawMessage]
		if err := json.Unmarshal(respBody, &env); err == nil && env.Status.Error != "" {
			return goerr.New("qdrant error",
				goerr.Value("status", resp.StatusCode),
				goerr.Value("error", env.Status.Error))
		}
		return goerr.New("qdrant error",
			goerr.Value("status", resp.StatusCode),
			goerr.Value("body", strings.TrimSpace(string(respBody))))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return goerr.Wrap(err, "failed to decode qdrant response")
		}
	}

	return nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (r *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.Value("dimension", dimension))
	}

	path := "/collections/" + url.PathEscape(r.collection)

	var exists qdrantEnvelope[json.RawMessage]
	if err := r.do(ctx, http.MethodGet, path, nil, &exists); err == nil {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := r.do(ctx, http.MethodPut, path, body, nil); err != nil {
		// Creation racing with another writer is fine
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return err
	}
	return nil
}

func (r *Qdrant) PutMemory(ctx context.Context, memory *model.Memory) error {
	if memory.ID == "" {
		return goerr.New("memory ID is required")
	}

	body := map[string]any{
		"points": []map[string]any{{
			"id":     string(memory.ID),
			"vector": memory.Embedding,
			"payload": map[string]any{
				qdrantTextKey:      memory.Text,
				qdrantMetadataKey:  memory.Metadata,
				qdrantCreatedAtKey: memory.CreatedAt.UTC().Format(time.RFC3339Nano),
				qdrantUpdatedAtKey: memory.UpdatedAt.UTC().Format(time.RFC3339Nano),
			},
		}},
	}

	path := "/collections/" + url.PathEscape(r.collection) + "/points?wait=true"
	if err := r.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return goerr.Wrap(err, "failed to upsert memory", goerr.Value("memory_id", memory.ID))
	}
	return nil
}

func (r *Qdrant) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	body := map[string]any{
		"ids":          []string{string(id)},
		"with_payload": true,
		"with_vector":  true,
	}

	var resp qdrantEnvelope[[]qdrantPoint]
	path := "/collections/" + url.PathEscape(r.collection) + "/points"
	if err := r.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve memory", goerr.Value("memory_id", id))
	}

	if len(resp.Result) == 0 {
		return nil, goerr.Wrap(ErrMemoryNotFound, "memory not found", goerr.Value("memory_id", id))
	}

	return qdrantPointToMemory(resp.Result[0]), nil
}

func (r *Qdrant) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*SearchHit, error) {
	if len(input.Embedding) == 0 {
		return nil, goerr.New("search embedding is empty")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	body := map[string]any{
		"vector":       input.Embedding,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if len(input.Filter) > 0 {
		must := make([]map[string]any, 0, len(input.Filter))
		for key, value := range input.Filter {
			must = append(must, map[string]any{
				"key":   qdrantMetadataKey + "." + key,
				"match": map[string]any{"value": value},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}
	if input.Threshold > 0 {
		body["score_threshold"] = input.Threshold
	}

	var resp qdrantEnvelope[[]qdrantPoint]
	path := "/collections/" + url.PathEscape(r.collection) + "/points/search"
	if err := r.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to search memories")
	}

	hits := make([]*SearchHit, 0, len(resp.Result))
	for _, point := range resp.Result {
		hits = append(hits, &SearchHit{
			Memory: qdrantPointToMemory(point),
			Score:  point.Score,
		})
	}
	return hits, nil
}

func (r *Qdrant) DeleteMemories(ctx context.Context, ids []model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}

	body := map[string]any{"points": raw}
	path := "/collections/" + url.PathEscape(r.collection) + "/points/delete?wait=true"
	if err := r.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return goerr.Wrap(err, "failed to delete memories")
	}
	return nil
}

func qdrantPointToMemory(point qdrantPoint) *model.Memory {
	memory := &model.Memory{
		ID:        model.MemoryID(point.ID),
		Embedding: point.Vector,
		Metadata:  map[string]string{},
	}

	if text, ok := point.Payload[qdrantTextKey].(string); ok {
		memory.Text = text
	}
	if meta, ok := point.Payload[qdrantMetadataKey].(map[string]any); ok {
		for k, v := range meta {
			if s, ok := v.(string); ok {
				memory.Metadata[k] = s
			}
		}
	}
	if raw, ok := point.Payload[qdrantCreatedAtKey].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			memory.CreatedAt = t
		}
	}
	if raw, ok := point.Payload[qdrantUpdatedAtKey].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			memory.UpdatedAt = t
		}
	}

	return memory
}
