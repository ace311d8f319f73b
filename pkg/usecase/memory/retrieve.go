package memory

import (
	"context"

	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
)

// RetrieveRelated finds the stored memories most similar to any of the
// given facts, scoped by the identity filter. Results are deduplicated by
// ID in first-seen order. A fact whose embedding or search fails is
// skipped; the remaining facts still contribute candidates.
func (uc *UseCase) RetrieveRelated(ctx context.Context, facts []string, filter map[string]string) []*model.Memory {
	logger := logging.From(ctx)

	seen := make(map[model.MemoryID]bool)
	var candidates []*model.Memory

	for _, fact := range facts {
		vector, err := uc.embedder.Embed(ctx, fact)
		if err != nil {
			logger.Warn("failed to embed fact, skipping retrieval", "error", err)
			continue
		}

		hits, err := uc.repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
			Embedding: vector,
			Filter:    filter,
			Limit:     uc.retrieveLimit,
			Threshold: uc.threshold,
		})
		if err != nil {
			logger.Warn("candidate search failed, skipping fact", "error", err)
			continue
		}

		for _, hit := range hits {
			if seen[hit.Memory.ID] {
				continue
			}
			seen[hit.Memory.ID] = true
			candidates = append(candidates, hit.Memory)
		}
	}

	logger.Debug("retrieved candidate memories", "facts", len(facts), "candidates", len(candidates))
	return candidates
}
