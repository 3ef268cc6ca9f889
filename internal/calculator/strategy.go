package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

// Strategy is one of Single, Equal, Percentage, or Fixed.
// Each variant carries exactly the fields it needs.
type Strategy interface {
	Kind() models.StrategyKind
	partyIDs() []string
	sealed()
}

// Single assigns the whole pending amount to one party.
type Single struct {
	PartyID string
}

// Equal splits the pending amount evenly; the last party absorbs rounding.
type Equal struct {
	PartyIDs []string
}

// PercentageShare is one party's percentage under the Percentage strategy.
type PercentageShare struct {
	PartyID string
	Percent decimal.Decimal
}

// Percentage splits by per-party percentages that must total 100.
type Percentage struct {
	Shares []PercentageShare
}

// FixedShare is one party's explicit amount under the Fixed strategy.
type FixedShare struct {
	PartyID string
	Amount  money.Money
}

// Fixed assigns explicit amounts that must total the pending amount.
type Fixed struct {
	Amounts []FixedShare
}

func (Single) Kind() models.StrategyKind     { return models.StrategySingle }
func (Equal) Kind() models.StrategyKind      { return models.StrategyEqual }
func (Percentage) Kind() models.StrategyKind { return models.StrategyPercentage }
func (Fixed) Kind() models.StrategyKind      { return models.StrategyFixed }

func (s Single) partyIDs() []string {
	if s.PartyID == "" {
		return nil
	}
	return []string{s.PartyID}
}

func (s Equal) partyIDs() []string { return s.PartyIDs }

func (s Percentage) partyIDs() []string {
	ids := make([]string, len(s.Shares))
	for i, sh := range s.Shares {
		ids[i] = sh.PartyID
	}
	return ids
}

func (s Fixed) partyIDs() []string {
	ids := make([]string, len(s.Amounts))
	for i, a := range s.Amounts {
		ids[i] = a.PartyID
	}
	return ids
}

func (Single) sealed()     {}
func (Equal) sealed()      {}
func (Percentage) sealed() {}
func (Fixed) sealed()      {}

// StrategyFromRequest converts the wire shape of a distribution request
// into a typed Strategy, rejecting fields that do not belong to the kind.
func StrategyFromRequest(kind models.StrategyKind, targets []models.DistributionTarget) (Strategy, error) {
	if len(targets) == 0 {
		return nil, newValidationError(CodeEmptyTargetSet, "at least one target party is required")
	}

	seen := make(map[string]bool, len(targets))
	for i, t := range targets {
		if t.PartyID == "" {
			return nil, newValidationError(CodeMissingShare, "target %d has no party id", i+1)
		}
		if seen[t.PartyID] {
			return nil, newValidationError(CodeDuplicateTarget, "party %s appears more than once", t.PartyID)
		}
		seen[t.PartyID] = true
	}

	switch kind {
	case models.StrategySingle:
		if len(targets) > 1 {
			return nil, newValidationError(CodeTooManyTargets,
				"single strategy takes exactly one target, got %d", len(targets))
		}
		if err := rejectShares(kind, targets); err != nil {
			return nil, err
		}
		return Single{PartyID: targets[0].PartyID}, nil

	case models.StrategyEqual:
		if err := rejectShares(kind, targets); err != nil {
			return nil, err
		}
		ids := make([]string, len(targets))
		for i, t := range targets {
			ids[i] = t.PartyID
		}
		return Equal{PartyIDs: ids}, nil

	case models.StrategyPercentage:
		shares := make([]PercentageShare, len(targets))
		for i, t := range targets {
			if t.Amount != nil {
				return nil, newValidationError(CodeUnexpectedShare,
					"percentage strategy does not take an amount (party %s, amount %s)", t.PartyID, t.Amount)
			}
			if t.Percentage == nil {
				return nil, newValidationError(CodeMissingShare,
					"percentage strategy requires a percentage for party %s", t.PartyID)
			}
			shares[i] = PercentageShare{PartyID: t.PartyID, Percent: *t.Percentage}
		}
		return Percentage{Shares: shares}, nil

	case models.StrategyFixed:
		amounts := make([]FixedShare, len(targets))
		for i, t := range targets {
			if t.Percentage != nil {
				return nil, newValidationError(CodeUnexpectedShare,
					"fixed strategy does not take a percentage (party %s, percentage %s)", t.PartyID, t.Percentage.String())
			}
			if t.Amount == nil {
				return nil, newValidationError(CodeMissingShare,
					"fixed strategy requires an amount for party %s", t.PartyID)
			}
			amounts[i] = FixedShare{PartyID: t.PartyID, Amount: *t.Amount}
		}
		return Fixed{Amounts: amounts}, nil
	}

	return nil, newValidationError(CodeUnknownStrategy, "unknown distribution strategy %q", kind)
}

func rejectShares(kind models.StrategyKind, targets []models.DistributionTarget) error {
	for _, t := range targets {
		if t.Percentage != nil || t.Amount != nil {
			return newValidationError(CodeUnexpectedShare,
				"%s strategy takes no percentage or amount (party %s)", kind, t.PartyID)
		}
	}
	return nil
}
