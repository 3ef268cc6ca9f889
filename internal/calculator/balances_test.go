package calculator

import (
	"errors"
	"testing"

	"github.com/mmynk/foliodesk/internal/models"
)

func consistentFolio() models.Folio {
	return models.Folio{
		ID:               "folio-1",
		Status:           models.FolioActive,
		UnassignedAmount: amount("50.00"),
		Parties: []models.ResponsibleParty{
			{ID: "guest", DisplayName: "Guest", AssignedAmount: amount("300.00"), PaidAmount: amount("100.00")},
			{ID: "company", DisplayName: "Company", AssignedAmount: amount("150.00"), PaidAmount: amount("150.00")},
		},
		ReportedTotals: models.Totals{
			TotalCharges:      amount("500.00"),
			DistributedAmount: amount("450.00"),
			PaymentsTotal:     amount("250.00"),
			GlobalBalance:     amount("200.00"),
		},
	}
}

func TestReconcile_Consistent(t *testing.T) {
	folio, recErr := Reconcile(consistentFolio())
	if recErr != nil {
		t.Fatalf("unexpected reconciliation error: %v", recErr)
	}

	totals := folio.Totals
	if totals.DistributedAmount.String() != "450.00" {
		t.Errorf("distributed = %s, want 450.00", totals.DistributedAmount)
	}
	if totals.PaymentsTotal.String() != "250.00" {
		t.Errorf("payments = %s, want 250.00", totals.PaymentsTotal)
	}
	if totals.GlobalBalance.String() != "200.00" {
		t.Errorf("global balance = %s, want 200.00", totals.GlobalBalance)
	}
	if !totals.ControlDiff.IsZero() {
		t.Errorf("control diff = %s, want 0.00", totals.ControlDiff)
	}
	if folio.UnassignedAmount.String() != "50.00" {
		t.Errorf("unassigned = %s, want 50.00", folio.UnassignedAmount)
	}
	if !CheckInvariants(folio) {
		t.Error("invariants should hold for a reconciled folio")
	}
	if len(folio.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", folio.Warnings)
	}
}

func TestReconcile_SurfacesControlDiff(t *testing.T) {
	input := consistentFolio()
	input.ReportedTotals.PaymentsTotal = amount("230.00")
	input.ReportedTotals.GlobalBalance = amount("220.00")

	folio, recErr := Reconcile(input)
	if recErr == nil {
		t.Fatal("expected a reconciliation error")
	}

	var target *ReconciliationError
	if !errors.As(error(recErr), &target) {
		t.Fatal("expected *ReconciliationError")
	}
	if len(recErr.Mismatches) != 2 {
		t.Errorf("mismatches = %d, want 2", len(recErr.Mismatches))
	}
	if recErr.ControlDiff.Abs().String() != "20.00" {
		t.Errorf("control diff = %s, want magnitude 20.00", recErr.ControlDiff)
	}
	if folio.Totals.ControlDiff.IsZero() {
		t.Error("control diff must be kept on the folio")
	}
	if len(folio.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", folio.Warnings)
	}

	// Local figures are reported as computed, never overwritten by the backend's.
	if folio.Totals.PaymentsTotal.String() != "250.00" {
		t.Errorf("payments = %s, want recomputed 250.00", folio.Totals.PaymentsTotal)
	}
	if !contains(recErr.Error(), "230.00") || !contains(recErr.Error(), "250.00") {
		t.Errorf("error message should carry both figures: %s", recErr.Error())
	}
}

func TestReconcile_IgnoresSubCentDrift(t *testing.T) {
	input := consistentFolio()
	input.ReportedTotals.GlobalBalance = amount("200.01")

	folio, recErr := Reconcile(input)
	if recErr != nil {
		t.Fatalf("one cent of drift must not fail reconciliation: %v", recErr)
	}
	if folio.Totals.ControlDiff.String() != "0.01" {
		t.Errorf("control diff = %s, want 0.01", folio.Totals.ControlDiff)
	}
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	input := consistentFolio()
	input.ReportedTotals.DistributedAmount = amount("999.00")

	_, _ = Reconcile(input)
	if len(input.Warnings) != 0 {
		t.Error("input folio must not be modified")
	}
	if !input.Totals.ControlDiff.IsZero() {
		t.Error("input totals must not be modified")
	}
}

func TestReconcile_InvariantsAcrossShapes(t *testing.T) {
	parties := [][]models.ResponsibleParty{
		nil,
		{{ID: "a", AssignedAmount: amount("10.00")}},
		{{ID: "a", AssignedAmount: amount("33.34"), PaidAmount: amount("40.00")}, {ID: "b", AssignedAmount: amount("33.33")}},
	}

	for i, ps := range parties {
		folio, _ := Reconcile(models.Folio{
			ID:             "f",
			Parties:        ps,
			ReportedTotals: models.Totals{TotalCharges: amount("100.00")},
		})
		if !CheckInvariants(folio) {
			t.Errorf("case %d: invariants violated: %+v", i, folio.Totals)
		}
	}
}
