package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/observability"
)

const DefaultTimeout = 30 * time.Second

type completion struct {
	text string
	err  error
}

// Invoker races each completion against an independent timer. The first to
// settle wins; a completion that arrives after the timer is dropped.
type Invoker struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
	after     func(time.Duration) <-chan time.Time
}

func NewInvoker(completer Completer, timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
		after:     time.After,
	}
}

func (i *Invoker) Timeout() time.Duration {
	return i.timeout
}

func (i *Invoker) Invoke(ctx context.Context, prompt string, profile Profile) (string, error) {
	const op errs.Op = "llm.Invoke"
	if i.completer == nil {
		return "", errs.E(errs.Config, op, ErrMissingAPIKey)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan completion, 1)
	go func() {
		text, err := i.completer.Complete(callCtx, prompt, profile)
		done <- completion{text: text, err: err}
	}()

	logger := observability.LoggerWithTrace(ctx, i.logger).With(
		slog.String("profile", profile.Name),
		slog.String("model", profile.Model),
	)

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.err != nil {
			kind := Classify(res.err)
			observability.ObserveModelCall(profile.Name, outcomeLabel(kind), elapsed)
			logger.WarnContext(ctx, "model_call_failed",
				slog.String("kind", kind.String()),
				slog.String("error", res.err.Error()),
				slog.String("duration", elapsed.String()),
			)
			return "", errs.E(kind, op, res.err)
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			observability.ObserveModelCall(profile.Name, "empty", elapsed)
			return "", errs.E(errs.ProviderOther, op, ErrEmptyResponse)
		}
		observability.ObserveModelCall(profile.Name, "ok", elapsed)
		logger.DebugContext(ctx, "model_call_completed", slog.String("duration", elapsed.String()))
		return text, nil
	case <-i.after(i.timeout):
		observability.ObserveModelCall(profile.Name, "timeout", time.Since(start))
		logger.WarnContext(ctx, "model_call_timed_out", slog.String("timeout", i.timeout.String()))
		return "", errs.E(errs.Timeout, op, fmt.Errorf("%w after %s", ErrTimeout, i.timeout))
	case <-ctx.Done():
		observability.ObserveModelCall(profile.Name, "cancelled", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errs.E(errs.Timeout, op, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err()))
		}
		return "", errs.E(errs.Internal, op, ctx.Err())
	}
}

func outcomeLabel(kind errs.Kind) string {
	switch kind {
	case errs.ProviderQuota:
		return "quota"
	case errs.ProviderNetwork:
		return "network"
	default:
		return "provider_error"
	}
}
