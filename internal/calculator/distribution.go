package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Allocation is one party's resolved share of a distribution.
type Allocation struct {
	PartyID string      `json:"partyId"`
	Amount  money.Money `json:"amount"`
}

// Plan is the resolved result of a distribution strategy. It does not
// mutate anything; the orchestrator submits it to the backend.
type Plan struct {
	Strategy       models.StrategyKind `json:"strategy"`
	Pending        money.Money         `json:"pending"`
	Allocations    []Allocation        `json:"allocations"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
}

// Total is the sum of all allocations.
func (p *Plan) Total() money.Money {
	total := money.Zero()
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// WithKey echoes the idempotency key on the plan for audit.
func (p *Plan) WithKey(key string) *Plan {
	p.IdempotencyKey = key
	return p
}

// Applied converts the plan into the shape submitted to the backend.
func (p *Plan) Applied() models.AppliedDistribution {
	entries := make([]models.DistributionEntry, len(p.Allocations))
	for i, a := range p.Allocations {
		entries[i] = models.DistributionEntry{PartyID: a.PartyID, Amount: a.Amount}
	}
	return models.AppliedDistribution{
		IdempotencyKey: p.IdempotencyKey,
		Strategy:       p.Strategy,
		Entries:        entries,
	}
}

// ComputeDistribution computes each party's share of pending under s.
//
// Equal and percentage shares are apportioned in whole cents: every party
// gets the floor of its exact share and the leftover cents go one at a time
// to the final targets, so the sum always equals pending exactly and no
// share is more than one cent away from its exact value.
func ComputeDistribution(pending money.Money, s Strategy) (*Plan, error) {
	if s == nil {
		return nil, newValidationError(CodeUnknownStrategy, "no distribution strategy given")
	}
	if !pending.IsPositive() {
		return nil, newValidationError(CodeNothingToDistribute,
			"pending amount is %s, nothing to distribute", pending)
	}
	if len(s.partyIDs()) == 0 {
		return nil, newValidationError(CodeEmptyTargetSet, "at least one target party is required")
	}

	var (
		allocations []Allocation
		err         error
	)
	switch st := s.(type) {
	case Single:
		allocations = []Allocation{{PartyID: st.PartyID, Amount: pending}}
	case Equal:
		allocations, err = computeEqual(pending, st)
	case Percentage:
		allocations, err = computePercentage(pending, st)
	case Fixed:
		allocations, err = computeFixed(pending, st)
	default:
		return nil, newValidationError(CodeUnknownStrategy, "unknown distribution strategy %q", s.Kind())
	}
	if err != nil {
		return nil, err
	}

	return &Plan{
		Strategy:    s.Kind(),
		Pending:     pending,
		Allocations: allocations,
	}, nil
}

func computeEqual(pending money.Money, s Equal) ([]Allocation, error) {
	weights := make([]decimal.Decimal, len(s.PartyIDs))
	for i := range weights {
		weights[i] = decimal.NewFromInt(1)
	}
	return apportion(pending, s.PartyIDs, weights)
}

func computePercentage(pending money.Money, s Percentage) ([]Allocation, error) {
	sum := decimal.Zero
	ids := make([]string, len(s.Shares))
	weights := make([]decimal.Decimal, len(s.Shares))
	for i, sh := range s.Shares {
		if !sh.Percent.IsPositive() {
			return nil, newValidationError(CodeNonPositiveShare,
				"percentage for party %s must be positive, got %s%%", sh.PartyID, sh.Percent.String())
		}
		sum = sum.Add(sh.Percent)
		ids[i] = sh.PartyID
		weights[i] = sh.Percent
	}

	if sum.Sub(hundred).Abs().GreaterThan(money.Epsilon.Decimal()) {
		return nil, newValidationError(CodePercentageSumMismatch,
			"percentages must total 100%%, got %s%% (off by %s)", sum.String(), sum.Sub(hundred).String())
	}

	return apportion(pending, ids, weights)
}

func computeFixed(pending money.Money, s Fixed) ([]Allocation, error) {
	allocations := make([]Allocation, len(s.Amounts))
	sum := money.Zero()
	for i, a := range s.Amounts {
		if !a.Amount.IsPositive() {
			return nil, newValidationError(CodeNonPositiveShare,
				"amount for party %s must be positive, got %s", a.PartyID, a.Amount)
		}
		sum = sum.Add(a.Amount)
		allocations[i] = Allocation{PartyID: a.PartyID, Amount: a.Amount}
	}

	// Amounts are whole cents, so any nonzero delta is at least one cent
	// and fails.
	delta := sum.Sub(pending)
	if delta.Abs().Cmp(money.Epsilon) >= 0 {
		err := newValidationError(CodeFixedSumMismatch,
			"fixed amounts total %s but pending amount is %s (delta %s)", sum, pending, delta)
		err.Delta = &delta
		return nil, err
	}

	return allocations, nil
}

// apportion splits pending in cents proportionally to weights.
func apportion(pending money.Money, ids []string, weights []decimal.Decimal) ([]Allocation, error) {
	totalCents := decimal.NewFromInt(pending.Cents())
	weightSum := decimal.Zero
	for _, w := range weights {
		weightSum = weightSum.Add(w)
	}

	cents := make([]int64, len(ids))
	var assigned int64
	for i, w := range weights {
		cents[i] = totalCents.Mul(w).Div(weightSum).Floor().IntPart()
		assigned += cents[i]
	}

	// Leftover is < len(ids); the final targets absorb it.
	leftover := pending.Cents() - assigned
	for i := len(cents) - 1; leftover > 0; i-- {
		cents[i]++
		leftover--
		if i == 0 {
			i = len(cents)
		}
	}

	allocations := make([]Allocation, len(ids))
	for i, id := range ids {
		if cents[i] <= 0 {
			return nil, newValidationError(CodeNonPositiveShare,
				"%s cannot be split among %d parties: party %s would receive 0.00", pending, len(ids), id)
		}
		allocations[i] = Allocation{PartyID: id, Amount: money.FromCents(cents[i])}
	}
	return allocations, nil
}

// PreviewDistribution validates a wire request against a folio snapshot and
// computes the plan without applying it.
func PreviewDistribution(folio models.Folio, req models.DistributionRequest) (*Plan, error) {
	strategy, err := StrategyFromRequest(req.Strategy, req.Targets)
	if err != nil {
		return nil, err
	}

	for _, id := range strategy.partyIDs() {
		if !folio.HasParty(id) {
			return nil, newValidationError(CodeUnknownParty, "party %s is not on folio %s", id, folio.ID)
		}
	}

	pending := folio.UnassignedAmount
	if req.Amount != nil {
		if req.Amount.Cmp(pending) > 0 && !req.Amount.Equal(pending) {
			return nil, newValidationError(CodeExceedsUnassigned,
				"requested %s exceeds the unassigned amount %s", *req.Amount, pending)
		}
		pending = req.Amount.Min(pending)
	}

	plan, err := ComputeDistribution(pending, strategy)
	if err != nil {
		return nil, err
	}
	return plan.WithKey(req.IdempotencyKey), nil
}
