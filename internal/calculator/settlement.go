package calculator

import (
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

// AllocatePayment spreads a general (party-less) payment over the parties
// that owe, oldest first, in folio order.
//
// Each owing party receives up to its outstanding balance. Anything left
// once every balance is covered is credited to the titular party, or to the
// first party when the folio has no titular.
func AllocatePayment(folio models.Folio, amount money.Money) ([]Allocation, error) {
	if !amount.IsPositive() {
		return nil, newValidationError(CodeNonPositiveShare, "payment amount must be positive, got %s", amount)
	}
	if len(folio.Parties) == 0 {
		return nil, newValidationError(CodeEmptyTargetSet, "folio %s has no parties to allocate %s to", folio.ID, amount)
	}

	remaining := amount
	var allocations []Allocation
	for _, p := range folio.Parties {
		if !remaining.IsPositive() {
			break
		}
		owed := p.Balance()
		if !owed.IsPositive() {
			continue
		}
		take := remaining.Min(owed)
		allocations = append(allocations, Allocation{PartyID: p.ID, Amount: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		creditID := folio.TitularPartyID
		if !folio.HasParty(creditID) {
			creditID = folio.Parties[0].ID
		}
		allocations = mergeAllocation(allocations, creditID, remaining)
	}
	return allocations, nil
}

// ClosingReclassification computes the entries that move everything still
// unresolved onto the titular party when a folio is closed.
//
// The unassigned amount is charged to the titular party. Every other party
// with an outstanding balance is relieved of it (a negative entry) and the
// same amount is charged to the titular party. Overpaid parties are left
// untouched. The entries net to the unassigned amount.
func ClosingReclassification(folio models.Folio, titularID string) ([]Allocation, error) {
	if !folio.HasParty(titularID) {
		return nil, newValidationError(CodeUnknownParty, "titular party %s is not on folio %s", titularID, folio.ID)
	}

	var entries []Allocation
	toTitular := money.Zero()
	if folio.UnassignedAmount.IsPositive() {
		toTitular = folio.UnassignedAmount
	}
	for _, p := range folio.Parties {
		if p.ID == titularID {
			continue
		}
		owed := p.Balance()
		if !owed.IsPositive() {
			continue
		}
		entries = append(entries, Allocation{PartyID: p.ID, Amount: owed.Neg()})
		toTitular = toTitular.Add(owed)
	}
	if toTitular.IsPositive() {
		entries = append(entries, Allocation{PartyID: titularID, Amount: toTitular})
	}
	return entries, nil
}

func mergeAllocation(allocations []Allocation, partyID string, amount money.Money) []Allocation {
	for i := range allocations {
		if allocations[i].PartyID == partyID {
			allocations[i].Amount = allocations[i].Amount.Add(amount)
			return allocations
		}
	}
	return append(allocations, Allocation{PartyID: partyID, Amount: amount})
}

// ValidatePayment checks a payment request against a folio snapshot.
func ValidatePayment(folio models.Folio, req models.PaymentRequest) error {
	if !req.Amount.IsPositive() {
		return newValidationError(CodeNonPositiveShare, "payment amount must be positive, got %s", req.Amount)
	}
	if !req.Method.IsValid() {
		return newValidationError(CodeUnknownPaymentMethod, "unknown payment method %q", req.Method)
	}
	if req.PartyID != "" && !folio.HasParty(req.PartyID) {
		return newValidationError(CodeUnknownParty, "party %s is not on folio %s", req.PartyID, folio.ID)
	}
	return nil
}
