package models

import "github.com/mmynk/foliodesk/internal/money"

// PaymentMethod is how a payment was tendered.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentVoucher  PaymentMethod = "voucher"
	PaymentOther    PaymentMethod = "other"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentVoucher, PaymentOther:
		return true
	}
	return false
}

// PaymentRequest registers a payment against a folio.
// PartyID is optional; a general payment is spread over parties that owe.
type PaymentRequest struct {
	IdempotencyKey string        `json:"idempotencyKey"`
	Amount         money.Money   `json:"amount"`
	Method         PaymentMethod `json:"method"`
	PartyID        string        `json:"partyId,omitempty"`
	Note           string        `json:"note,omitempty"`
}

// CloseRequest closes a folio and reclassifies whatever is unresolved to
// the titular party.
type CloseRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
	TitularPartyID string `json:"titularPartyId"`
}
