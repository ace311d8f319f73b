package memory

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/repository"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
)

// WriteInput carries one conversation turn into the pipeline.
type WriteInput struct {
	Conversation string
	UserID       string
	AgentID      string
	// ExtraMetadata is stored verbatim on every memory this turn creates
	// or updates. Keys colliding with the identity keys are overwritten.
	ExtraMetadata map[string]string
}

// Write runs the full pipeline for one conversation turn: extract facts,
// retrieve candidates, reconcile, normalize, apply. Backend failures
// degrade stage by stage; the worst case is a report with no mutations.
// An error is returned only for invalid input.
func (uc *UseCase) Write(ctx context.Context, input *WriteInput) (*model.ApplyReport, error) {
	if input.UserID == "" {
		return nil, goerr.New("user ID is required")
	}

	uc.archiveTranscript(ctx, input)

	filter := identityFilter(input.UserID, input.AgentID)

	facts := uc.ExtractFacts(ctx, input.Conversation)
	if len(facts) == 0 {
		logging.From(ctx).Info("no facts extracted, nothing to write", "user_id", input.UserID)
		return &model.ApplyReport{}, nil
	}

	candidates := uc.RetrieveRelated(ctx, facts, filter)
	ops := NormalizeOperations(uc.Reconcile(ctx, facts, candidates))

	metadata := make(map[string]string, len(input.ExtraMetadata)+2)
	for k, v := range input.ExtraMetadata {
		metadata[k] = v
	}
	metadata[model.MetaUserID] = input.UserID
	if input.AgentID != "" {
		metadata[model.MetaAgentID] = input.AgentID
	}

	report := uc.Apply(ctx, ops, metadata)

	logging.From(ctx).Info("memory write completed",
		"user_id", input.UserID,
		"facts", len(facts),
		"added", report.Added,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"failed", len(report.Failures),
	)
	return report, nil
}

// Apply mutates the store according to a normalized operation batch. A
// failing operation is recorded in the report and never aborts its
// siblings.
func (uc *UseCase) Apply(ctx context.Context, ops []model.Operation, sharedMetadata map[string]string) *model.ApplyReport {
	logger := logging.From(ctx)
	report := &model.ApplyReport{}

	for _, op := range ops {
		switch op.Event {
		case model.EventAdd:
			if err := uc.applyAdd(ctx, op, sharedMetadata); err != nil {
				logger.Warn("failed to add memory", "error", err)
				report.Failures = append(report.Failures, model.OperationFailure{Operation: op, Reason: err})
				continue
			}
			report.Added++

		case model.EventUpdate:
			if err := uc.applyUpdate(ctx, op, sharedMetadata); err != nil {
				logger.Warn("failed to update memory", "memory_id", op.ID, "error", err)
				report.Failures = append(report.Failures, model.OperationFailure{Operation: op, Reason: err})
				continue
			}
			report.Updated++

		case model.EventDelete:
			if err := uc.repo.DeleteMemories(ctx, []model.MemoryID{op.ID}); err != nil {
				logger.Warn("failed to delete memory", "memory_id", op.ID, "error", err)
				report.Failures = append(report.Failures, model.OperationFailure{Operation: op, Reason: err})
				continue
			}
			report.Deleted++

		case model.EventNone:
			logger.Debug("memory unchanged", "memory_id", op.ID)
			report.Skipped++
		}
	}

	return report
}

func (uc *UseCase) applyAdd(ctx context.Context, op model.Operation, sharedMetadata map[string]string) error {
	vector, err := uc.embedder.Embed(ctx, op.Text)
	if err != nil {
		return goerr.Wrap(err, "failed to embed new memory text")
	}

	now := time.Now().UTC()
	return uc.repo.PutMemory(ctx, &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      op.Text,
		Embedding: vector,
		Metadata:  cloneMetadata(sharedMetadata),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (uc *UseCase) applyUpdate(ctx context.Context, op model.Operation, sharedMetadata map[string]string) error {
	if op.Text == "" {
		return goerr.New("update without text", goerr.Value("memory_id", op.ID))
	}

	vector, err := uc.embedder.Embed(ctx, op.Text)
	if err != nil {
		return goerr.Wrap(err, "failed to embed updated memory text")
	}

	now := time.Now().UTC()
	createdAt := now
	if existing, err := uc.repo.GetMemory(ctx, op.ID); err == nil {
		createdAt = existing.CreatedAt
	} else if !errors.Is(err, repository.ErrMemoryNotFound) {
		logging.From(ctx).Warn("failed to load memory before update", "memory_id", op.ID, "error", err)
	}

	// text and vector are replaced together in a single upsert
	return uc.repo.PutMemory(ctx, &model.Memory{
		ID:        op.ID,
		Text:      op.Text,
		Embedding: vector,
		Metadata:  cloneMetadata(sharedMetadata),
		CreatedAt: createdAt,
		UpdatedAt: now,
	})
}

// archiveTranscript saves the raw conversation to the transcript store
// when one is configured. Failures are logged and ignored; archival never
// blocks the pipeline.
func (uc *UseCase) archiveTranscript(ctx context.Context, input *WriteInput) {
	if uc.storage == nil || input.Conversation == "" {
		return
	}
	logger := logging.From(ctx)

	key := "transcripts/" + input.UserID + "/" + time.Now().UTC().Format("20060102T150405") + "-" + string(model.NewMemoryID()) + ".txt"
	w, err := uc.storage.Put(ctx, key)
	if err != nil {
		logger.Warn("failed to open transcript writer", "key", key, "error", err)
		return
	}
	if _, err := w.Write([]byte(input.Conversation)); err != nil {
		logger.Warn("failed to write transcript", "key", key, "error", err)
		_ = w.Close()
		return
	}
	if err := w.Close(); err != nil {
		logger.Warn("failed to finalize transcript", "key", key, "error", err)
	}
}

func identityFilter(userID, agentID string) map[string]string {
	filter := map[string]string{model.MetaUserID: userID}
	if agentID != "" {
		filter[model.MetaAgentID] = agentID
	}
	return filter
}

func cloneMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
