package calculator

import (
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

// ComputeTotals recomputes the folio-level figures from the party rows.
// TotalCharges is taken as given; everything else is derived.
//
// Algorithm:
// - distributed = Σ party.AssignedAmount
// - payments    = Σ party.PaidAmount
// - unassigned  = totalCharges − distributed
// - global      = distributed − payments
func ComputeTotals(totalCharges money.Money, parties []models.ResponsibleParty) (models.Totals, money.Money) {
	distributed := money.Zero()
	payments := money.Zero()
	for _, p := range parties {
		distributed = distributed.Add(p.AssignedAmount)
		payments = payments.Add(p.PaidAmount)
	}

	totals := models.Totals{
		TotalCharges:      totalCharges,
		DistributedAmount: distributed,
		PaymentsTotal:     payments,
		GlobalBalance:     distributed.Sub(payments),
	}
	return totals, totalCharges.Sub(distributed)
}

// Reconcile recomputes the folio's totals from its parties and compares them
// with the totals the backend reported.
//
// The returned folio always carries the recomputed figures. ControlDiff is
// the reported − computed delta with the largest magnitude across the
// compared fields. When it exceeds one cent a ReconciliationError describing
// every mismatch is returned alongside the folio; nothing is corrected.
func Reconcile(folio models.Folio) (models.Folio, *ReconciliationError) {
	out := folio.Clone()
	reported := folio.ReportedTotals

	totals, unassigned := ComputeTotals(reported.TotalCharges, folio.Parties)

	fields := []FieldMismatch{
		{Field: "distributedAmount", Reported: reported.DistributedAmount, Computed: totals.DistributedAmount},
		{Field: "unassignedAmount", Reported: folio.UnassignedAmount, Computed: unassigned},
		{Field: "paymentsTotal", Reported: reported.PaymentsTotal, Computed: totals.PaymentsTotal},
		{Field: "globalBalance", Reported: reported.GlobalBalance, Computed: totals.GlobalBalance},
	}

	controlDiff := money.Zero()
	var mismatches []FieldMismatch
	for _, f := range fields {
		d := f.Delta()
		if d.Abs().Cmp(controlDiff.Abs()) > 0 {
			controlDiff = d
		}
		if d.ExceedsEpsilon() || d.Neg().ExceedsEpsilon() {
			mismatches = append(mismatches, f)
		}
	}

	totals.ControlDiff = controlDiff
	out.Totals = totals
	out.UnassignedAmount = unassigned

	if len(mismatches) == 0 {
		return out, nil
	}

	recErr := &ReconciliationError{
		FolioID:     folio.ID,
		ControlDiff: controlDiff,
		Mismatches:  mismatches,
	}
	out.Warnings = append(out.Warnings, recErr.Error())
	return out, recErr
}

// CheckInvariants reports whether a reconciled folio satisfies
// unassigned + distributed == totalCharges and
// globalBalance == distributed − payments, both within one cent.
func CheckInvariants(folio models.Folio) bool {
	t := folio.Totals
	if !folio.UnassignedAmount.Add(t.DistributedAmount).Equal(t.TotalCharges) {
		return false
	}
	return t.GlobalBalance.Equal(t.DistributedAmount.Sub(t.PaymentsTotal))
}
