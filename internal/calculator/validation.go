package calculator

import (
	"fmt"
	"strings"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

// IssueCode identifies a pre-checkout finding.
type IssueCode string

const (
	IssueFolioNotActive     IssueCode = "FOLIO_NOT_ACTIVE"
	IssueOutstandingBalance IssueCode = "OUTSTANDING_BALANCE"
	IssueUndistributed      IssueCode = "UNDISTRIBUTED_CHARGES"
	IssueAsymmetricSplit    IssueCode = "ASYMMETRIC_ASSIGNMENT"
	IssueControlDiff        IssueCode = "INTEGRITY_CONTROL_DIFF"
)

// Issue is one blocking error or warning. Amount carries the figure the
// message is about, when there is one.
type Issue struct {
	Code    IssueCode    `json:"code"`
	Message string       `json:"message"`
	Amount  *money.Money `json:"amount,omitempty"`
}

// CheckoutPolicy holds the configuration-controlled checkout rules.
type CheckoutPolicy struct {
	// AllowOutstandingBalance lets checkout proceed, and collect payment,
	// while the folio still has a balance.
	AllowOutstandingBalance bool `json:"allowOutstandingBalance"`

	// RequireFullDistribution turns undistributed charges into a blocking error.
	RequireFullDistribution bool `json:"requireFullDistribution"`
}

// CheckoutValidation is the outcome of the pre-checkout rule set.
type CheckoutValidation struct {
	CanCheckout bool    `json:"canCheckout"`
	Errors      []Issue `json:"errors"`
	Warnings    []Issue `json:"warnings"`
}

// Summary joins all blocking error messages.
func (v CheckoutValidation) Summary() string {
	msgs := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// ValidateCheckout runs the pre-checkout rules against a reconciled folio.
func ValidateCheckout(folio models.Folio, policy CheckoutPolicy) CheckoutValidation {
	v := CheckoutValidation{Errors: []Issue{}, Warnings: []Issue{}}

	if !folio.Status.CanMutate() {
		v.Errors = append(v.Errors, Issue{
			Code:    IssueFolioNotActive,
			Message: fmt.Sprintf("folio %s is %s and cannot be checked out", folio.ID, folio.Status),
		})
	}

	balance := folio.Totals.GlobalBalance
	if balance.ExceedsEpsilon() {
		amount := balance
		if policy.AllowOutstandingBalance {
			v.Warnings = append(v.Warnings, Issue{
				Code:    IssueOutstandingBalance,
				Message: fmt.Sprintf("outstanding balance of %s will be collected at checkout", balance),
				Amount:  &amount,
			})
		} else {
			v.Errors = append(v.Errors, Issue{
				Code:    IssueOutstandingBalance,
				Message: fmt.Sprintf("outstanding balance of %s must be paid before checkout", balance),
				Amount:  &amount,
			})
		}
	}

	unassigned := folio.UnassignedAmount
	if unassigned.ExceedsEpsilon() {
		amount := unassigned
		issue := Issue{
			Code:   IssueUndistributed,
			Amount: &amount,
		}
		if policy.RequireFullDistribution {
			issue.Message = fmt.Sprintf("%s in charges must be distributed before checkout", unassigned)
			v.Errors = append(v.Errors, issue)
		} else {
			issue.Message = fmt.Sprintf("%s in charges were never distributed; distributing them is recommended", unassigned)
			v.Warnings = append(v.Warnings, issue)
		}
	}

	if len(folio.Parties) > 1 {
		var idle []string
		for _, p := range folio.Parties {
			if p.AssignedAmount.IsZero() {
				idle = append(idle, p.DisplayName)
			}
		}
		if len(idle) > 0 && len(idle) < len(folio.Parties) {
			v.Warnings = append(v.Warnings, Issue{
				Code: IssueAsymmetricSplit,
				Message: fmt.Sprintf("%d of %d parties have 0.00 assigned: %s",
					len(idle), len(folio.Parties), strings.Join(idle, ", ")),
			})
		}
	}

	diff := folio.Totals.ControlDiff
	if diff.ExceedsEpsilon() || diff.Neg().ExceedsEpsilon() {
		amount := diff
		v.Warnings = append(v.Warnings, Issue{
			Code:    IssueControlDiff,
			Message: fmt.Sprintf("folio totals are inconsistent: control diff %s", diff),
			Amount:  &amount,
		})
	}

	v.CanCheckout = len(v.Errors) == 0
	return v
}
