package calculator

import (
	"testing"

	"github.com/mmynk/foliodesk/internal/models"
)

func party(id, assigned, paid string) models.ResponsibleParty {
	return models.ResponsibleParty{
		ID:             id,
		DisplayName:    id,
		AssignedAmount: amount(assigned),
		PaidAmount:     amount(paid),
	}
}

func TestAllocatePayment(t *testing.T) {
	folio := models.Folio{
		ID:             "f1",
		TitularPartyID: "c",
		Parties: []models.ResponsibleParty{
			party("a", "50.00", "50.00"),
			party("b", "80.00", "20.00"),
			party("c", "40.00", "0.00"),
		},
	}

	tests := []struct {
		name   string
		amount string
		want   map[string]string
	}{
		{
			name:   "covers oldest debtor first",
			amount: "30.00",
			want:   map[string]string{"b": "30.00"},
		},
		{
			name:   "spills into next debtor",
			amount: "75.00",
			want:   map[string]string{"b": "60.00", "c": "15.00"},
		},
		{
			name:   "overpayment credited to titular",
			amount: "110.00",
			want:   map[string]string{"b": "60.00", "c": "50.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AllocatePayment(folio, amount(tt.amount))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d allocations, want %d: %v", len(got), len(tt.want), got)
			}
			for _, a := range got {
				want, ok := tt.want[a.PartyID]
				if !ok {
					t.Errorf("unexpected allocation to %s", a.PartyID)
					continue
				}
				if a.Amount.String() != want {
					t.Errorf("party %s: got %s, want %s", a.PartyID, a.Amount, want)
				}
			}
		})
	}
}

func TestAllocatePaymentNoTitularFallsBackToFirstParty(t *testing.T) {
	folio := models.Folio{
		ID:      "f1",
		Parties: []models.ResponsibleParty{party("a", "10.00", "10.00"), party("b", "0.00", "0.00")},
	}
	got, err := AllocatePayment(folio, amount("5.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].PartyID != "a" || got[0].Amount.String() != "5.00" {
		t.Errorf("got %v, want a:5.00", got)
	}
}

func TestAllocatePaymentRejects(t *testing.T) {
	folio := models.Folio{ID: "f1", Parties: []models.ResponsibleParty{party("a", "10.00", "0.00")}}

	_, err := AllocatePayment(folio, amount("0.00"))
	wantCode(t, err, CodeNonPositiveShare)

	_, err = AllocatePayment(models.Folio{ID: "empty"}, amount("10.00"))
	wantCode(t, err, CodeEmptyTargetSet)
}

func TestClosingReclassification(t *testing.T) {
	folio := models.Folio{
		ID:               "f1",
		TitularPartyID:   "a",
		UnassignedAmount: amount("25.00"),
		Parties: []models.ResponsibleParty{
			party("a", "100.00", "100.00"),
			party("b", "60.00", "40.00"),
			party("c", "30.00", "35.00"),
		},
	}

	got, err := ClosingReclassification(folio, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(got), got)
	}
	if got[0].PartyID != "b" || got[0].Amount.String() != "-20.00" {
		t.Errorf("first entry = %v, want b:-20.00", got[0])
	}
	if got[1].PartyID != "a" || got[1].Amount.String() != "45.00" {
		t.Errorf("second entry = %v, want a:45.00", got[1])
	}

	net := got[0].Amount.Add(got[1].Amount)
	if !net.Equal(folio.UnassignedAmount) {
		t.Errorf("entries net to %s, want %s", net, folio.UnassignedAmount)
	}
}

func TestClosingReclassificationNothingToMove(t *testing.T) {
	folio := models.Folio{
		ID:      "f1",
		Parties: []models.ResponsibleParty{party("a", "50.00", "50.00"), party("b", "50.00", "50.00")},
	}
	got, err := ClosingReclassification(folio, "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %v", got)
	}
}

func TestClosingReclassificationUnknownTitular(t *testing.T) {
	folio := models.Folio{ID: "f1", Parties: []models.ResponsibleParty{party("a", "0.00", "0.00")}}
	_, err := ClosingReclassification(folio, "zz")
	wantCode(t, err, CodeUnknownParty)
}

func TestValidatePayment(t *testing.T) {
	folio := models.Folio{ID: "f1", Parties: []models.ResponsibleParty{party("a", "10.00", "0.00")}}

	tests := []struct {
		name string
		req  models.PaymentRequest
		code ValidationCode
	}{
		{"zero amount", models.PaymentRequest{Amount: amount("0.00"), Method: models.PaymentCash}, CodeNonPositiveShare},
		{"negative amount", models.PaymentRequest{Amount: amount("-5.00"), Method: models.PaymentCash}, CodeNonPositiveShare},
		{"unknown method", models.PaymentRequest{Amount: amount("5.00"), Method: "barter"}, CodeUnknownPaymentMethod},
		{"unknown party", models.PaymentRequest{Amount: amount("5.00"), Method: models.PaymentCard, PartyID: "zz"}, CodeUnknownParty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, ValidatePayment(folio, tt.req), tt.code)
		})
	}

	ok := models.PaymentRequest{Amount: amount("5.00"), Method: models.PaymentCard, PartyID: "a"}
	if err := ValidatePayment(folio, ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
