package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
)

// SearchInput parameterizes a read-only memory lookup.
type SearchInput struct {
	Query   string
	UserID  string
	AgentID string
	Limit   int
}

// Search returns the stored memories most similar to the query, scoped to
// the given identity and ordered by descending score. Backend failures
// degrade to an empty result with a warning log. An error is returned
// only for invalid input.
func (uc *UseCase) Search(ctx context.Context, input *SearchInput) ([]*model.SearchResult, error) {
	if input.UserID == "" {
		return nil, goerr.New("user ID is required")
	}
	logger := logging.From(ctx)

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	vector, err := uc.embedder.Embed(ctx, input.Query)
	if err != nil {
		logger.Warn("failed to embed search query", "error", err)
		return nil, nil
	}

	hits, err := uc.repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: vector,
		Filter:    identityFilter(input.UserID, input.AgentID),
		Limit:     limit,
		Threshold: uc.threshold,
	})
	if err != nil {
		logger.Warn("memory search failed", "error", err)
		return nil, nil
	}

	results := make([]*model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &model.SearchResult{
			ID:       hit.Memory.ID,
			Text:     hit.Memory.Text,
			Score:    hit.Score,
			Metadata: hit.Memory.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}
