package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"connectrpc.com/connect"

	"github.com/mmynk/foliodesk/internal/settlement"
)

// Response metadata set on a failed checkout so the caller can show where
// the attempt stopped.
const (
	headerAttemptID    = "Checkout-Attempt-Id"
	headerAttemptState = "Checkout-Attempt-State"
	headerProgress     = "Checkout-Progress"
)

// CheckoutService implements the Connect CheckoutService.
type CheckoutService struct {
	orchestrator *settlement.Orchestrator
}

var _ CheckoutServiceHandler = (*CheckoutService)(nil)

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(orchestrator *settlement.Orchestrator) *CheckoutService {
	return &CheckoutService{orchestrator: orchestrator}
}

// ValidateCheckout runs the pre-checkout rules without changing anything.
func (s *CheckoutService) ValidateCheckout(ctx context.Context, req *connect.Request[GetFolioRequest]) (*connect.Response[ValidateCheckoutResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}

	folio, validation := s.orchestrator.ValidateCheckout(folio)
	return connect.NewResponse(&ValidateCheckoutResponse{
		Folio:      folio,
		Validation: validation,
		Policy:     s.orchestrator.Policy(),
	}), nil
}

// Checkout runs validate, pay, and close for a folio. A failed attempt can be
// retried with the same request.
func (s *CheckoutService) Checkout(ctx context.Context, req *connect.Request[CheckoutRequest]) (*connect.Response[CheckoutResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.orchestrator.BeginCheckout(ctx, folio, req.Msg.CheckoutRequest)
	if err != nil {
		cerr := toConnectError(err)
		var connectErr *connect.Error
		if result != nil && errors.As(cerr, &connectErr) {
			connectErr.Meta().Set(headerAttemptID, result.Attempt.ID)
			connectErr.Meta().Set(headerAttemptState, string(result.Attempt.State))
			connectErr.Meta().Set(headerProgress, strconv.Itoa(result.Attempt.Progress))
		}
		return nil, cerr
	}

	slog.Info("Checkout finished", "folio_id", folio.ID, "attempt_id", result.Attempt.ID)
	return connect.NewResponse(result), nil
}
