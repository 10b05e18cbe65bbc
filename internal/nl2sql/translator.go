package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/prompt"
)

// Fallback reasons.
const (
	ReasonTimeout  = "timeout"
	ReasonEmpty    = "empty"
	ReasonProvider = "provider_error"
	ReasonUnsafe   = "unsafe_query"
)

// Translation is the query to execute. Candidate holds the model output
// when one was produced, FellBack is set when SQL is the default query.
type Translation struct {
	SQL       string
	Candidate string
	FellBack  bool
	Reason    string
}

type Translator struct {
	model   llm.Model
	profile llm.Profile
	logger  *slog.Logger
}

func NewTranslator(model llm.Model, profile llm.Profile, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{model: model, profile: profile, logger: logger}
}

// Translate never fails on model trouble: any provider error or unsafe
// candidate is replaced by the default query for table.
func (t *Translator) Translate(ctx context.Context, question, table, metadata string) (Translation, error) {
	const op errs.Op = "nl2sql.Translate"
	if blank(question) {
		return Translation{}, errs.E(errs.Validation, op, fmt.Errorf("question is required: %w", ErrInvalidInput))
	}
	if !guard.IsIdentifier(table) {
		return Translation{}, errs.E(errs.Validation, op, fmt.Errorf("invalid table name %q: %w", table, ErrInvalidInput))
	}

	completion, err := t.model.Invoke(ctx, prompt.BuildQueryPrompt(question, table, metadata), t.profile)
	if err != nil {
		return t.fallback(ctx, table, "", fallbackReason(err), err), nil
	}
	candidate := guard.StripCodeFence(completion)
	if !guard.IsSafeSelect(candidate) {
		return t.fallback(ctx, table, candidate, ReasonUnsafe, nil), nil
	}
	return Translation{SQL: candidate, Candidate: candidate}, nil
}

func (t *Translator) fallback(ctx context.Context, table, candidate, reason string, cause error) Translation {
	observability.IncrementQueryFallback(reason)
	attrs := []any{
		slog.String("table", table),
		slog.String("reason", reason),
	}
	if candidate != "" {
		attrs = append(attrs, slog.String("candidate", candidate))
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	observability.LoggerWithTrace(ctx, t.logger).WarnContext(ctx, "query_fallback", attrs...)
	return Translation{
		SQL:       guard.DefaultQuery(table),
		Candidate: candidate,
		FellBack:  true,
		Reason:    reason,
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrTimeout) || errs.KindIs(errs.Timeout, err):
		return ReasonTimeout
	case errors.Is(err, llm.ErrEmptyResponse):
		return ReasonEmpty
	default:
		return ReasonProvider
	}
}
