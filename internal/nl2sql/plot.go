package nl2sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/prompt"
)

type PlotClassifier struct {
	model   llm.Model
	profile llm.Profile
}

func NewPlotClassifier(model llm.Model, profile llm.Profile) *PlotClassifier {
	return &PlotClassifier{model: model, profile: profile}
}

// Classify picks a plot type and the columns to draw. Questions without a
// plot keyword are rejected before the model is called.
func (c *PlotClassifier) Classify(ctx context.Context, question, metadata string) (guard.PlotDescriptor, error) {
	const op errs.Op = "nl2sql.Classify"
	if blank(question, metadata) {
		return guard.PlotDescriptor{}, errs.E(errs.Validation, op, fmt.Errorf("question and metadata are required: %w", ErrInvalidInput))
	}
	if !IsPlotRequest(question) {
		observability.IncrementPlotRejection("not_a_plot_request")
		return guard.PlotDescriptor{}, errs.E(errs.Validation, op, ErrNotAPlotRequest)
	}

	completion, err := c.model.Invoke(ctx, prompt.BuildPlotPrompt(question, metadata), c.profile)
	if err != nil {
		return guard.PlotDescriptor{}, errs.E(op, err)
	}
	descriptor, err := guard.ValidatePlot(guard.StripCodeFence(completion))
	if err != nil {
		observability.IncrementPlotRejection(rejectionReason(err))
		return guard.PlotDescriptor{}, errs.E(op, err)
	}
	return descriptor, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, guard.ErrInvalidPlotType):
		return "invalid_plot_type"
	case errors.Is(err, guard.ErrInvalidColumns):
		return "invalid_columns"
	default:
		return "invalid_format"
	}
}
