package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/observability"
)

const internalErrorMessage = "An internal error occurred"

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.Validation, errs.ExecutionConflict:
		return http.StatusBadRequest
	case errs.ExecutionNotFound:
		return http.StatusNotFound
	case errs.Timeout:
		return http.StatusGatewayTimeout
	case errs.ProviderQuota, errs.ProviderNetwork, errs.ProviderOther:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes the envelope. Server side
// failures are logged and their detail is withheld from the client.
func writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)
	message := errs.Message(err)

	log := observability.LoggerWithTrace(ctx, logger)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request_failed",
			slog.String("kind", kind.String()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		if kind == errs.Internal || kind == errs.Other {
			message = internalErrorMessage
		}
	} else {
		log.InfoContext(ctx, "request_rejected",
			slog.String("kind", kind.String()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeEnvelope(ctx, w, status, message)
}
