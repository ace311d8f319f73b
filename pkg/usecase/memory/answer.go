package memory

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
)

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

// AnswerOutput is a grounded answer together with the memories it was
// based on.
type AnswerOutput struct {
	Answer   string
	Memories []*model.SearchResult
}

// Answer searches the user's memories for the question and asks the LLM
// to answer using only what was found. Unlike the write pipeline, an LLM
// failure here is surfaced: an interactive caller has nothing to show
// otherwise.
func (uc *UseCase) Answer(ctx context.Context, input *SearchInput) (*AnswerOutput, error) {
	memories, err := uc.Search(ctx, input)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := answerPromptTmpl.Execute(&buf, map[string]any{
		"Question": input.Query,
		"Memories": memories,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to build answer prompt")
	}

	answer, err := uc.llm.Complete(ctx, buf.String(), input.Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate answer")
	}

	return &AnswerOutput{
		Answer:   answer,
		Memories: memories,
	}, nil
}
