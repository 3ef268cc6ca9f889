package models

import (
	"time"

	"github.com/mmynk/foliodesk/internal/money"
)

// EventKind classifies ledger events.
type EventKind string

const (
	EventCharge           EventKind = "charge"
	EventDistribution     EventKind = "distribution"
	EventPayment          EventKind = "payment"
	EventReclassification EventKind = "reclassification"
	EventClose            EventKind = "close"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCharge, EventDistribution, EventPayment, EventReclassification, EventClose:
		return true
	}
	return false
}

// LedgerEvent is one append-only entry in a folio's audit trail.
type LedgerEvent struct {
	ID             string      `json:"id"`
	FolioID        string      `json:"folioId"`
	Kind           EventKind   `json:"kind"`
	PartyID        string      `json:"partyId,omitempty"`
	Amount         money.Money `json:"amount"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	Description    string      `json:"description,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// HistoryPage is one page of ledger events, newest first.
type HistoryPage struct {
	Events   []LedgerEvent `json:"events"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}

// PageRequest selects a page of history. Page is 1-based.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Normalize applies defaults and bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
	return p
}

// Offset is the number of rows to skip.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}
