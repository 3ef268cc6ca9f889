// Package storage provides abstractions for the folio ledger backend.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

var (
	// ErrNotFound is returned when a folio or party does not exist.
	ErrNotFound = errors.New("not found")

	// ErrFolioNotActive is returned when mutating a closed or cancelled folio.
	ErrFolioNotActive = errors.New("folio is not active")

	// ErrKeyConflict is returned when an idempotency key is reused with
	// different parameters.
	ErrKeyConflict = errors.New("idempotency key already used with different parameters")

	// ErrInvalidOperation is returned for requests the ledger rejects,
	// such as distributing more than is unassigned.
	ErrInvalidOperation = errors.New("invalid operation")
)

// PartyInput describes a responsible party when a folio is opened.
type PartyInput struct {
	// ID is optional; one is generated when empty.
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
}

// OpenFolioRequest opens a folio at check-in.
// The first party is the titular party unless TitularPartyID names another.
type OpenFolioRequest struct {
	ID             string       `json:"id,omitempty"`
	Currency       string       `json:"currency"`
	Parties        []PartyInput `json:"parties"`
	TitularPartyID string       `json:"titularPartyId,omitempty"`
}

// ChargeRequest posts an unassigned charge to a folio.
type ChargeRequest struct {
	Amount      money.Money `json:"amount"`
	Description string      `json:"description"`
}

// Ledger is the backend that owns folio state.
// Every mutating call honors at-most-once application per idempotency key.
type Ledger interface {
	// OpenFolio creates an active folio with its responsible parties.
	OpenFolio(ctx context.Context, req OpenFolioRequest) (*models.Folio, error)

	// PostCharge adds an unassigned charge.
	PostCharge(ctx context.Context, folioID string, req ChargeRequest) (*models.Folio, error)

	// GetFolioSnapshot reads the current state of a folio.
	GetFolioSnapshot(ctx context.Context, folioID string) (*models.Folio, error)

	// SubmitDistribution applies a resolved distribution plan.
	SubmitDistribution(ctx context.Context, folioID string, dist models.AppliedDistribution) (*models.Folio, error)

	// SubmitPayment registers a party-scoped or general payment.
	SubmitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, error)

	// CloseFolio reclassifies unresolved amounts to the titular party and
	// closes the folio.
	CloseFolio(ctx context.Context, folioID string, req models.CloseRequest) (*models.Folio, error)

	// GetHistory returns one page of ledger events, newest first.
	// An empty kind returns every kind.
	GetHistory(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error)

	// Close releases any resources held by the store.
	Close() error
}
