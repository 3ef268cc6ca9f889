package calculator

import (
	"testing"

	"github.com/mmynk/foliodesk/internal/models"
)

func reconciled(t *testing.T, folio models.Folio) models.Folio {
	t.Helper()
	out, _ := Reconcile(folio)
	return out
}

func issueCodes(issues []Issue) map[IssueCode]Issue {
	out := make(map[IssueCode]Issue, len(issues))
	for _, i := range issues {
		out[i.Code] = i
	}
	return out
}

func TestValidateCheckout(t *testing.T) {
	settled := models.Folio{
		ID:     "settled",
		Status: models.FolioActive,
		Parties: []models.ResponsibleParty{
			{ID: "guest", DisplayName: "Guest", AssignedAmount: amount("200.00"), PaidAmount: amount("200.00")},
		},
		ReportedTotals: models.Totals{
			TotalCharges:      amount("200.00"),
			DistributedAmount: amount("200.00"),
			PaymentsTotal:     amount("200.00"),
		},
	}

	owing := models.Folio{
		ID:     "owing",
		Status: models.FolioActive,
		Parties: []models.ResponsibleParty{
			{ID: "guest", DisplayName: "Guest", AssignedAmount: amount("200.00"), PaidAmount: amount("80.00")},
			{ID: "agency", DisplayName: "Agency"},
		},
		UnassignedAmount: amount("40.00"),
		ReportedTotals: models.Totals{
			TotalCharges:      amount("240.00"),
			DistributedAmount: amount("200.00"),
			PaymentsTotal:     amount("80.00"),
			GlobalBalance:     amount("120.00"),
		},
	}

	closed := settled
	closed.ID = "closed"
	closed.Status = models.FolioClosed

	tests := []struct {
		name         string
		folio        models.Folio
		policy       CheckoutPolicy
		canCheckout  bool
		wantErrors   []IssueCode
		wantWarnings []IssueCode
	}{
		{
			name:        "settled folio passes cleanly",
			folio:       settled,
			canCheckout: true,
		},
		{
			name:         "outstanding balance blocks by default",
			folio:        owing,
			canCheckout:  false,
			wantErrors:   []IssueCode{IssueOutstandingBalance},
			wantWarnings: []IssueCode{IssueUndistributed, IssueAsymmetricSplit},
		},
		{
			name:         "outstanding balance permitted",
			folio:        owing,
			policy:       CheckoutPolicy{AllowOutstandingBalance: true},
			canCheckout:  true,
			wantWarnings: []IssueCode{IssueOutstandingBalance, IssueUndistributed, IssueAsymmetricSplit},
		},
		{
			name:         "full distribution required",
			folio:        owing,
			policy:       CheckoutPolicy{AllowOutstandingBalance: true, RequireFullDistribution: true},
			canCheckout:  false,
			wantErrors:   []IssueCode{IssueUndistributed},
			wantWarnings: []IssueCode{IssueOutstandingBalance, IssueAsymmetricSplit},
		},
		{
			name:        "closed folio",
			folio:       closed,
			canCheckout: false,
			wantErrors:  []IssueCode{IssueFolioNotActive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateCheckout(reconciled(t, tt.folio), tt.policy)

			if v.CanCheckout != tt.canCheckout {
				t.Errorf("CanCheckout = %v, want %v (errors: %s)", v.CanCheckout, tt.canCheckout, v.Summary())
			}
			if len(v.Errors) != len(tt.wantErrors) {
				t.Errorf("errors = %+v, want %v", v.Errors, tt.wantErrors)
			}
			if len(v.Warnings) != len(tt.wantWarnings) {
				t.Errorf("warnings = %+v, want %v", v.Warnings, tt.wantWarnings)
			}
			errs := issueCodes(v.Errors)
			for _, code := range tt.wantErrors {
				if _, ok := errs[code]; !ok {
					t.Errorf("missing error %s", code)
				}
			}
			warns := issueCodes(v.Warnings)
			for _, code := range tt.wantWarnings {
				if _, ok := warns[code]; !ok {
					t.Errorf("missing warning %s", code)
				}
			}
		})
	}
}

func TestValidateCheckout_MessagesCarryFigures(t *testing.T) {
	folio := reconciled(t, models.Folio{
		ID:     "f",
		Status: models.FolioActive,
		Parties: []models.ResponsibleParty{
			{ID: "guest", DisplayName: "Guest", AssignedAmount: amount("75.50")},
		},
		UnassignedAmount: amount("12.25"),
		ReportedTotals: models.Totals{
			TotalCharges:      amount("87.75"),
			DistributedAmount: amount("75.50"),
			GlobalBalance:     amount("75.50"),
		},
	})

	blocked := ValidateCheckout(folio, CheckoutPolicy{})
	balance := issueCodes(blocked.Errors)[IssueOutstandingBalance]
	if !contains(balance.Message, "75.50") {
		t.Errorf("balance error should include the amount: %q", balance.Message)
	}
	if balance.Amount == nil || balance.Amount.String() != "75.50" {
		t.Errorf("balance error amount = %v", balance.Amount)
	}

	allowed := ValidateCheckout(folio, CheckoutPolicy{AllowOutstandingBalance: true})
	warning := issueCodes(allowed.Warnings)[IssueOutstandingBalance]
	if !contains(warning.Message, "75.50") {
		t.Errorf("balance warning should include the amount: %q", warning.Message)
	}
	undistributed := issueCodes(allowed.Warnings)[IssueUndistributed]
	if !contains(undistributed.Message, "12.25") {
		t.Errorf("undistributed warning should include the amount: %q", undistributed.Message)
	}
}

func TestValidateCheckout_BalanceWithinToleranceIsNotOutstanding(t *testing.T) {
	folio := reconciled(t, models.Folio{
		ID:     "f",
		Status: models.FolioActive,
		Parties: []models.ResponsibleParty{
			{ID: "guest", AssignedAmount: amount("100.00"), PaidAmount: amount("99.99")},
		},
		ReportedTotals: models.Totals{
			TotalCharges:      amount("100.00"),
			DistributedAmount: amount("100.00"),
			PaymentsTotal:     amount("99.99"),
			GlobalBalance:     amount("0.01"),
		},
	})

	v := ValidateCheckout(folio, CheckoutPolicy{})
	if !v.CanCheckout {
		t.Errorf("a one-cent balance must not block checkout: %s", v.Summary())
	}
}

func TestValidateCheckout_SurfacesControlDiff(t *testing.T) {
	folio := reconciled(t, models.Folio{
		ID:     "f",
		Status: models.FolioActive,
		Parties: []models.ResponsibleParty{
			{ID: "guest", AssignedAmount: amount("100.00"), PaidAmount: amount("100.00")},
		},
		ReportedTotals: models.Totals{
			TotalCharges:      amount("100.00"),
			DistributedAmount: amount("90.00"),
			PaymentsTotal:     amount("100.00"),
			GlobalBalance:     amount("-10.00"),
		},
	})

	v := ValidateCheckout(folio, CheckoutPolicy{})
	if _, ok := issueCodes(v.Warnings)[IssueControlDiff]; !ok {
		t.Errorf("expected an integrity warning, got %+v", v.Warnings)
	}
}
