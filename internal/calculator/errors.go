package calculator

import (
	"fmt"
	"strings"

	"github.com/mmynk/foliodesk/internal/money"
)

// ValidationCode identifies a caller-correctable distribution problem.
type ValidationCode string

const (
	CodeEmptyTargetSet        ValidationCode = "EMPTY_TARGET_SET"
	CodeNonPositiveShare      ValidationCode = "NON_POSITIVE_SHARE"
	CodeNothingToDistribute   ValidationCode = "NOTHING_TO_DISTRIBUTE"
	CodeTooManyTargets        ValidationCode = "TOO_MANY_TARGETS"
	CodePercentageSumMismatch ValidationCode = "PERCENTAGE_SUM_MISMATCH"
	CodeFixedSumMismatch      ValidationCode = "FIXED_SUM_MISMATCH"
	CodeMissingShare          ValidationCode = "MISSING_SHARE"
	CodeUnexpectedShare       ValidationCode = "UNEXPECTED_SHARE"
	CodeDuplicateTarget       ValidationCode = "DUPLICATE_TARGET"
	CodeUnknownStrategy       ValidationCode = "UNKNOWN_STRATEGY"
	CodeUnknownParty          ValidationCode = "UNKNOWN_PARTY"
	CodeExceedsUnassigned     ValidationCode = "EXCEEDS_UNASSIGNED"
	CodeUnknownPaymentMethod  ValidationCode = "UNKNOWN_PAYMENT_METHOD"
)

// ValidationError is returned by the strategy engine for input the caller
// must correct. It is never retried automatically.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"message"`

	// Delta is set for sum mismatches: computed sum minus expected.
	Delta *money.Money `json:"delta,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FieldMismatch is one reported-vs-recomputed figure that disagrees.
type FieldMismatch struct {
	Field    string      `json:"field"`
	Reported money.Money `json:"reported"`
	Computed money.Money `json:"computed"`
}

// Delta is reported − computed.
func (m FieldMismatch) Delta() money.Money {
	return m.Reported.Sub(m.Computed)
}

// ReconciliationError signals an internally inconsistent snapshot.
// It is a warning to surface, never something to correct automatically.
type ReconciliationError struct {
	FolioID     string          `json:"folioId"`
	ControlDiff money.Money     `json:"controlDiff"`
	Mismatches  []FieldMismatch `json:"mismatches"`
}

func (e *ReconciliationError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s reported %s, computed %s (delta %s)",
			m.Field, m.Reported, m.Computed, m.Delta()))
	}
	return fmt.Sprintf("folio %s failed reconciliation, control diff %s: %s",
		e.FolioID, e.ControlDiff, strings.Join(parts, "; "))
}
