package engine

import (
	"context"
	"errors"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// ErrWhollyUnreachable wraps a batch-level extraction failure: nothing was
// written to any store and the caller receives this single error instead of
// a partial result.
var ErrWhollyUnreachable = errors.New("extraction client unreachable")

// storeStage reports whether a stage performs store writes, where a timeout
// means the outcome is unknown rather than known-failed.
func storeStage(stage string) bool {
	switch stage {
	case models.StageVector, models.StageGraph, models.StageHistory:
		return true
	}
	return false
}

// newDecisionError shapes one per-decision failure. Timeouts on store writes
// are flagged unknown-outcome: the write may have landed, so callers must
// retry with idempotent semantics instead of assuming it did not.
func newDecisionError(stage string, decision *models.Decision, err error) models.DecisionError {
	de := models.DecisionError{
		Stage:   stage,
		Message: err.Error(),
	}
	if decision != nil {
		de.Event = decision.Event
		de.Text = decision.Text
	}
	if storeStage(stage) && errors.Is(err, context.DeadlineExceeded) {
		de.Unknown = true
	}
	return de
}

// candidateError shapes a failure that happened before any decision existed
// for the candidate text.
func candidateError(stage, candidate string, err error) models.DecisionError {
	return models.DecisionError{
		Stage:   stage,
		Text:    candidate,
		Message: err.Error(),
	}
}
