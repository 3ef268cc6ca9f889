package settlement

import (
	"fmt"
	"strings"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/models"
)

// CollaboratorError wraps any failure returned by the backend. It carries the
// idempotency key of the failed call so the operation can be retried safely.
type CollaboratorError struct {
	Op             string
	FolioID        string
	IdempotencyKey string
	Err            error
}

func (e *CollaboratorError) Error() string {
	if e.IdempotencyKey == "" {
		return fmt.Sprintf("%s on folio %s failed: %v", e.Op, e.FolioID, e.Err)
	}
	return fmt.Sprintf("%s on folio %s failed (idempotency key %s): %v", e.Op, e.FolioID, e.IdempotencyKey, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ConcurrentAttemptError is returned when a mutating operation is started
// while another one is in flight for the same folio.
type ConcurrentAttemptError struct {
	FolioID string
	// AttemptID identifies the attempt already in flight.
	AttemptID string
}

func (e *ConcurrentAttemptError) Error() string {
	return fmt.Sprintf("folio %s already has attempt %s in flight", e.FolioID, e.AttemptID)
}

// StateViolationError is returned when an operation is attempted against a
// folio whose status forbids it.
type StateViolationError struct {
	FolioID string
	Status  models.FolioStatus
	Op      string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("cannot %s folio %s: folio is %s", e.Op, e.FolioID, e.Status)
}

// CheckoutBlockedError is returned when pre-checkout validation reports
// blocking errors.
type CheckoutBlockedError struct {
	FolioID string
	Issues  []calculator.Issue
}

func (e *CheckoutBlockedError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("checkout of folio %s blocked: %s", e.FolioID, strings.Join(msgs, "; "))
}
