package nl2sql

import (
	"context"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/prompt"
)

type Synthesizer struct {
	model   llm.Model
	profile llm.Profile
}

func NewSynthesizer(model llm.Model, profile llm.Profile) *Synthesizer {
	return &Synthesizer{model: model, profile: profile}
}

// Synthesize phrases the query result as an answer to question. Model
// errors are returned as they are.
func (s *Synthesizer) Synthesize(ctx context.Context, question, metadata, queryResultJSON string) (string, error) {
	const op errs.Op = "nl2sql.Synthesize"
	if blank(question, metadata, queryResultJSON) {
		return "", errs.E(errs.Validation, op, fmt.Errorf("question, metadata and query result are required: %w", ErrInvalidInput))
	}
	answer, err := s.model.Invoke(ctx, prompt.BuildAnswerPrompt(question, metadata, queryResultJSON), s.profile)
	if err != nil {
		return "", errs.E(op, err)
	}
	return answer, nil
}
