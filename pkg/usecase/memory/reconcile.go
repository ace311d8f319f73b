package memory

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/utils/jsonx"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
)

//go:embed prompt/reconcile.md
var reconcilePrompt string

type reconcileRequest struct {
	NewFacts         []string          `json:"new_facts"`
	ExistingMemories []candidateMemory `json:"existing_memories"`
}

type candidateMemory struct {
	ID   model.MemoryID `json:"id"`
	Text string         `json:"text"`
}

type rawOperation struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Reconcile asks the LLM how the new facts should change the existing
// memories, returning the raw operation list it proposed. Candidates are
// reduced to id and text; vectors and metadata never reach the prompt.
// Oracle and parse failures yield an empty list, meaning "do nothing this
// round".
func (uc *UseCase) Reconcile(ctx context.Context, facts []string, existing []*model.Memory) []model.Operation {
	logger := logging.From(ctx)

	if len(facts) == 0 {
		return nil
	}

	req := reconcileRequest{
		NewFacts:         facts,
		ExistingMemories: make([]candidateMemory, 0, len(existing)),
	}
	for _, m := range existing {
		req.ExistingMemories = append(req.ExistingMemories, candidateMemory{
			ID:   m.ID,
			Text: m.Text,
		})
	}

	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal reconciliation request", "error", err)
		return nil
	}

	raw, err := uc.llm.Complete(ctx, reconcilePrompt, string(payload))
	if err != nil {
		logger.Warn("reconciliation failed, skipping turn", "error", err)
		return nil
	}

	result := jsonx.Extract(raw, jsonx.MemoryKey)
	if !result.Ok() {
		logger.Warn("failed to parse reconciliation output", "error", result.Err)
		return nil
	}

	encoded, err := json.Marshal(result.Value)
	if err != nil {
		logger.Warn("failed to re-encode reconciliation output", "error", err)
		return nil
	}
	var rawOps []rawOperation
	if err := json.Unmarshal(encoded, &rawOps); err != nil {
		logger.Warn("reconciliation output is not an operation list", "error", err)
		return nil
	}

	ops := make([]model.Operation, 0, len(rawOps))
	for _, op := range rawOps {
		ops = append(ops, model.Operation{
			Event: model.EventType(strings.ToUpper(strings.TrimSpace(op.Event))),
			ID:    model.MemoryID(op.ID),
			Text:  op.Text,
		})
	}

	logger.Debug("reconciled facts", "facts", len(facts), "candidates", len(existing), "operations", len(ops))
	return ops
}
