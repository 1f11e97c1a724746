package resilience

import (
	"context"
	"errors"

	"github.com/4747uwu/radportal/internal/core/domain"
)

// ClassifyStoreError maps repository errors onto retry and breaker
// decisions. Lost races and degraded snapshots are worth retrying; caller
// mistakes are not, and they say nothing about store health.
func ClassifyStoreError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrConflict):
		// A lost optimistic race: retry, but the store itself is healthy.
		return ErrorClassification{Retryable: true, RecordFailure: false}
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrRecalculation):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrStudyNotFound),
		domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrInvalidTransition),
		domain.IsKind(err, domain.ErrUnauthorized):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}
