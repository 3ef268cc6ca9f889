package service

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/settlement"
	"github.com/mmynk/foliodesk/internal/storage"
)

// FolioService implements the Connect FolioService.
type FolioService struct {
	ledger          storage.Ledger
	orchestrator    *settlement.Orchestrator
	defaultCurrency string
}

// FolioServiceOption configures a FolioService.
type FolioServiceOption func(*FolioService)

// WithDefaultCurrency sets the currency of folios opened without one.
func WithDefaultCurrency(code string) FolioServiceOption {
	return func(s *FolioService) {
		s.defaultCurrency = code
	}
}

var _ FolioServiceHandler = (*FolioService)(nil)

// NewFolioService creates a FolioService. Check-in operations go straight to
// the ledger; everything that settles a folio goes through the orchestrator.
func NewFolioService(ledger storage.Ledger, orchestrator *settlement.Orchestrator, opts ...FolioServiceOption) *FolioService {
	s := &FolioService{ledger: ledger, orchestrator: orchestrator}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireFolioID(id string) error {
	if id == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("folio_id is required"))
	}
	return nil
}

// OpenFolio opens a folio with its responsible parties.
func (s *FolioService) OpenFolio(ctx context.Context, req *connect.Request[OpenFolioRequest]) (*connect.Response[FolioResponse], error) {
	if len(req.Msg.Parties) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("at least one party is required"))
	}

	open := *req.Msg
	if open.Currency == "" {
		open.Currency = s.defaultCurrency
	}

	folio, err := s.ledger.OpenFolio(ctx, open)
	if err != nil {
		slog.Error("OpenFolio failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Folio opened", "folio_id", folio.ID, "parties", len(folio.Parties), "titular_party_id", folio.TitularPartyID)
	return connect.NewResponse(&FolioResponse{Folio: *folio}), nil
}

// PostCharge posts an unassigned charge to an active folio.
func (s *FolioService) PostCharge(ctx context.Context, req *connect.Request[PostChargeRequest]) (*connect.Response[FolioResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.ledger.PostCharge(ctx, req.Msg.FolioID, req.Msg.ChargeRequest)
	if err != nil {
		slog.Error("PostCharge failed", "folio_id", req.Msg.FolioID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Debug("Charge posted", "folio_id", folio.ID, "amount", req.Msg.Amount.String())
	return connect.NewResponse(&FolioResponse{Folio: *folio}), nil
}

// GetFolio returns a reconciled snapshot. Integrity problems show up as
// warnings on the folio, not as errors.
func (s *FolioService) GetFolio(ctx context.Context, req *connect.Request[GetFolioRequest]) (*connect.Response[FolioResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&FolioResponse{Folio: folio}), nil
}

// PreviewDistribution computes a distribution plan without applying it.
func (s *FolioService) PreviewDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[PreviewDistributionResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}

	plan, err := calculator.PreviewDistribution(folio, req.Msg.DistributionRequest)
	if err != nil {
		slog.Debug("PreviewDistribution rejected", "folio_id", folio.ID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PreviewDistributionResponse{Plan: plan}), nil
}

// Distribute applies a distribution to the folio.
func (s *FolioService) Distribute(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributeResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.orchestrator.Distribute(ctx, folio, req.Msg.DistributionRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(result), nil
}

// RegisterPayment registers a party-scoped or general payment.
func (s *FolioService) RegisterPayment(ctx context.Context, req *connect.Request[RegisterPaymentRequest]) (*connect.Response[RegisterPaymentResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	folio, err := s.orchestrator.Snapshot(ctx, req.Msg.FolioID)
	if err != nil {
		return nil, toConnectError(err)
	}

	result, err := s.orchestrator.RegisterPayment(ctx, folio, req.Msg.PaymentRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(result), nil
}

// GetHistory returns one page of ledger events, newest first.
func (s *FolioService) GetHistory(ctx context.Context, req *connect.Request[GetHistoryRequest]) (*connect.Response[GetHistoryResponse], error) {
	if err := requireFolioID(req.Msg.FolioID); err != nil {
		return nil, err
	}

	page, err := s.orchestrator.History(ctx, req.Msg.FolioID, req.Msg.Kind, req.Msg.PageRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(page), nil
}
