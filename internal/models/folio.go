package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/foliodesk/internal/money"
)

// FolioStatus is the lifecycle state of a folio.
type FolioStatus string

const (
	FolioActive    FolioStatus = "active"
	FolioClosed    FolioStatus = "closed"
	FolioCancelled FolioStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s FolioStatus) IsValid() bool {
	switch s {
	case FolioActive, FolioClosed, FolioCancelled:
		return true
	}
	return false
}

// CanMutate reports whether distributions, payments, or closure may be applied.
// Only active folios accept mutation.
func (s FolioStatus) CanMutate() bool {
	return s == FolioActive
}

// ResponsibleParty is a person or entity liable for part of a folio.
type ResponsibleParty struct {
	// ID is stable for the lifetime of the folio (UUID format).
	ID string `json:"id"`

	// DisplayName is a human label; it is never used for identity.
	DisplayName string `json:"displayName"`

	// AssignedAmount is the total of charges distributed to this party.
	AssignedAmount money.Money `json:"assignedAmount"`

	// PaidAmount is the total of payments registered against this party.
	PaidAmount money.Money `json:"paidAmount"`
}

// Balance returns the signed assigned − paid delta.
// Keep the sign for reconciliation; use DisplayBalance for presentation.
func (p ResponsibleParty) Balance() money.Money {
	return p.AssignedAmount.Sub(p.PaidAmount)
}

// DisplayBalance is the balance floored at zero.
func (p ResponsibleParty) DisplayBalance() money.Money {
	return p.Balance().FloorZero()
}

// Totals aggregates the folio-level figures.
type Totals struct {
	TotalCharges      money.Money `json:"totalCharges"`
	DistributedAmount money.Money `json:"distributedAmount"`
	PaymentsTotal     money.Money `json:"paymentsTotal"`

	// GlobalBalance is DistributedAmount − PaymentsTotal. Charges that were
	// never distributed are not owed by anyone yet and are excluded.
	GlobalBalance money.Money `json:"globalBalance"`

	// ControlDiff is the reconciliation delta between reported and locally
	// recomputed totals. Anything beyond one cent is a data-integrity problem.
	ControlDiff money.Money `json:"controlDiff"`
}

// Folio is the aggregate root for one stay.
type Folio struct {
	ID       string      `json:"id"`
	Status   FolioStatus `json:"status"`
	Currency string      `json:"currency"`

	// TitularPartyID is the party that absorbs unresolved charges at close.
	TitularPartyID string `json:"titularPartyId,omitempty"`

	// UnassignedAmount is TotalCharges − Σ AssignedAmount.
	UnassignedAmount money.Money `json:"unassignedAmount"`

	// Parties keeps a stable display order.
	Parties []ResponsibleParty `json:"parties"`

	// Totals are the locally reconciled figures.
	Totals Totals `json:"totals"`

	// ReportedTotals are the figures as the backend reported them.
	ReportedTotals Totals `json:"reportedTotals"`

	// Warnings carries integrity warnings attached during reconciliation.
	Warnings []string `json:"warnings,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Party returns the party with the given ID.
func (f *Folio) Party(id string) (ResponsibleParty, bool) {
	for _, p := range f.Parties {
		if p.ID == id {
			return p, true
		}
	}
	return ResponsibleParty{}, false
}

// HasParty reports whether id is one of the folio's parties.
func (f *Folio) HasParty(id string) bool {
	_, ok := f.Party(id)
	return ok
}

// Clone returns a deep copy so callers can hand snapshots around freely.
func (f Folio) Clone() Folio {
	out := f
	out.Parties = append([]ResponsibleParty(nil), f.Parties...)
	out.Warnings = append([]string(nil), f.Warnings...)
	return out
}

// StrategyKind names a distribution strategy on the wire.
type StrategyKind string

const (
	StrategySingle     StrategyKind = "single"
	StrategyEqual      StrategyKind = "equal"
	StrategyPercentage StrategyKind = "percentage"
	StrategyFixed      StrategyKind = "fixed"
)

// DistributionTarget is one party in a distribution request.
// Percentage is only meaningful under the percentage strategy and Amount
// only under fixed; both are nil otherwise.
type DistributionTarget struct {
	PartyID    string           `json:"partyId"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Amount     *money.Money     `json:"amount,omitempty"`
}

// DistributionRequest assigns the unassigned amount, or the subset given in
// Amount, to a list of parties under one strategy.
type DistributionRequest struct {
	Strategy       StrategyKind         `json:"strategy"`
	Targets        []DistributionTarget `json:"targets"`
	Amount         *money.Money         `json:"amount,omitempty"`
	IdempotencyKey string               `json:"idempotencyKey"`
}

// DistributionEntry is one resolved share as sent to the backend.
type DistributionEntry struct {
	PartyID string      `json:"partyId"`
	Amount  money.Money `json:"amount"`
}

// AppliedDistribution is the resolved plan submitted to the backend.
type AppliedDistribution struct {
	IdempotencyKey string              `json:"idempotencyKey"`
	Strategy       StrategyKind        `json:"strategy"`
	Entries        []DistributionEntry `json:"entries"`
}

// Total is the sum of all entries.
func (d AppliedDistribution) Total() money.Money {
	total := money.Zero()
	for _, e := range d.Entries {
		total = total.Add(e.Amount)
	}
	return total
}
