package services

import (
	"errors"
	"fmt"
)

// Engine errors. Every lifecycle operation either commits or returns one of
// these synchronously; nothing is swallowed and partial writes roll back
// with the surrounding transaction.
var (
	// ErrSlotUnavailable: lost a claim race or the slot is already terminal.
	// Recoverable — the caller should re-query and pick another slot.
	ErrSlotUnavailable = errors.New("slot_unavailable")

	// ErrInvalidTransition: the requested status change is not legal from
	// the record's current status.
	ErrInvalidTransition = errors.New("invalid_transition")

	// ErrNotFound: the referenced slot or reservation does not exist.
	ErrNotFound = errors.New("not_found")

	// ErrWithinCancellationWindow: a claimant tried to cancel an approved
	// reservation less than 24 hours before its start.
	ErrWithinCancellationWindow = errors.New("within_cancellation_window")

	// ErrForbidden: the access-control collaborator denied the actor.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidToken: capability or confirmation token is expired, already
	// used, unknown, or scoped to a different action.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrRateLimited: the guest already has a live intent for this
	// email/infrastructure within the rolling day.
	ErrRateLimited = errors.New("rate_limited")
)

// MissingRequiredAnswersError reports which required questions were left
// unanswered (or answered with the wrong value shape) during a claim.
type MissingRequiredAnswersError struct {
	QuestionIDs []uint
}

func (e *MissingRequiredAnswersError) Error() string {
	return fmt.Sprintf("missing_required_answers: %v", e.QuestionIDs)
}
