package memory

import (
	"context"
	_ "embed"
	"strings"

	"github.com/m-mizutani/tamias/pkg/utils/jsonx"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
)

//go:embed prompt/extract.md
var extractPrompt string

// ExtractFacts distills one conversation turn into atomic factual
// statements. An oracle or parse failure yields no facts; the failure is
// logged, never returned.
func (uc *UseCase) ExtractFacts(ctx context.Context, conversation string) []string {
	logger := logging.From(ctx)

	if strings.TrimSpace(conversation) == "" {
		return nil
	}

	raw, err := uc.llm.Complete(ctx, extractPrompt, conversation)
	if err != nil {
		logger.Warn("fact extraction failed, skipping turn", "error", err)
		return nil
	}

	result := jsonx.Extract(raw, jsonx.FactsKey)
	if !result.Ok() {
		logger.Warn("failed to parse extracted facts", "error", result.Err)
		return nil
	}

	facts := make([]string, 0, len(result.StringList()))
	for _, fact := range result.StringList() {
		if strings.TrimSpace(fact) == "" {
			continue
		}
		facts = append(facts, fact)
	}

	logger.Debug("extracted facts", "count", len(facts), "strategy", result.Strategy)
	return facts
}
