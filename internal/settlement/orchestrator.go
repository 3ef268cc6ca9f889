// Package settlement drives every mutation of a folio: distributions,
// payments, and the multi-step checkout. All side effects go through a
// Collaborator and are keyed for at-most-once application.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/idempotency"
	"github.com/mmynk/foliodesk/internal/models"
)

// Operation names used in errors, logs, and metrics.
const (
	OpDistribute      = "distribute"
	OpRegisterPayment = "register_payment"
	OpCloseFolio      = "close_folio"
	OpGetSnapshot     = "get_snapshot"
	OpGetHistory      = "get_history"
)

// Orchestrator applies folio mutations against a Collaborator.
// It holds at most one in-flight mutating operation per folio.
type Orchestrator struct {
	backend   Collaborator
	store     idempotency.Store
	keys      *idempotency.Generator
	policy    calculator.CheckoutPolicy
	recordTTL time.Duration
	now       func() time.Time
	recorder  Recorder
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]string   // folio ID -> attempt ID
	retained map[string]keyState // folio ID -> keys of the last failed checkout
	attempts map[string]Attempt  // folio ID -> last finished checkout attempt
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the checkout policy.
func WithPolicy(p calculator.CheckoutPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithStore sets the store that remembers results by idempotency key.
func WithStore(s idempotency.Store) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	}
}

// WithRecordTTL sets how long replay records are kept.
func WithRecordTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.recordTTL = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics sets the event recorder.
func WithMetrics(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithKeyGenerator sets the idempotency key generator.
func WithKeyGenerator(g *idempotency.Generator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.keys = g
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator. Without WithStore, replay records are kept in
// process memory.
func New(backend Collaborator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		keys:      idempotency.NewGenerator(),
		recordTTL: idempotency.DefaultTTL,
		now:       time.Now,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		inflight:  make(map[string]string),
		retained:  make(map[string]keyState),
		attempts:  make(map[string]Attempt),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = idempotency.NewMemoryStore()
	}
	return o
}

// Policy returns the checkout policy in effect.
func (o *Orchestrator) Policy() calculator.CheckoutPolicy {
	return o.policy
}

// Snapshot fetches a folio and reconciles it. Integrity problems are attached
// to the folio as warnings and never fail the call.
func (o *Orchestrator) Snapshot(ctx context.Context, folioID string) (models.Folio, error) {
	folio, err := o.backend.GetFolioSnapshot(ctx, folioID)
	if err != nil {
		return models.Folio{}, &CollaboratorError{Op: OpGetSnapshot, FolioID: folioID, Err: err}
	}
	return o.reconcile(*folio), nil
}

// History returns a page of the folio's ledger events.
func (o *Orchestrator) History(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error) {
	h, err := o.backend.GetHistory(ctx, folioID, kind, page.Normalize())
	if err != nil {
		return nil, &CollaboratorError{Op: OpGetHistory, FolioID: folioID, Err: err}
	}
	return h, nil
}

// DistributionResult is the outcome of Distribute.
type DistributionResult struct {
	Plan     *calculator.Plan `json:"plan"`
	Folio    models.Folio     `json:"folio"`
	Replayed bool             `json:"replayed"`
}

// Distribute computes a plan from the caller's snapshot and submits it.
// A request without an idempotency key is given a fresh one. A key that was
// already applied to this folio is answered from its record before the
// snapshot is looked at, so a retry returns the original plan even when the
// folio has moved on since.
func (o *Orchestrator) Distribute(ctx context.Context, folio models.Folio, req models.DistributionRequest) (*DistributionResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = o.keys.Key(idempotency.KindDistribution)
	}
	fingerprint, err := idempotency.Fingerprint(distributionParams(req))
	if err != nil {
		return nil, err
	}

	prior, found, err := o.lookup(ctx, OpDistribute, folio.ID, req.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if found {
		o.logger.Info("Distribution replayed", "folio_id", folio.ID, "idempotency_key", req.IdempotencyKey)
		return &DistributionResult{Plan: prior.Plan, Folio: o.reconcile(prior.Folio), Replayed: true}, nil
	}

	if !folio.Status.CanMutate() {
		return nil, &StateViolationError{FolioID: folio.ID, Status: folio.Status, Op: OpDistribute}
	}

	folio = o.reconcile(folio)
	plan, err := calculator.PreviewDistribution(folio, req)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(folio.ID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	applied := plan.Applied()
	out, replayed, err := o.runOnce(ctx, idempotency.KindDistribution, OpDistribute, folio.ID, applied.IdempotencyKey, fingerprint, plan,
		func(ctx context.Context) (*models.Folio, error) {
			return o.backend.SubmitDistribution(ctx, folio.ID, applied)
		})
	if err != nil {
		return nil, err
	}

	o.logger.Info("Distribution applied",
		"folio_id", folio.ID,
		"strategy", plan.Strategy,
		"amount", plan.Total().String(),
		"targets", len(plan.Allocations),
		"idempotency_key", applied.IdempotencyKey,
		"replayed", replayed,
	)
	return &DistributionResult{Plan: out.Plan, Folio: o.reconcile(out.Folio), Replayed: replayed}, nil
}

// distributionParams is the part of a distribution request that identifies it.
func distributionParams(req models.DistributionRequest) any {
	req.IdempotencyKey = ""
	return req
}

// PaymentResult is the outcome of RegisterPayment.
type PaymentResult struct {
	Folio          models.Folio `json:"folio"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Replayed       bool         `json:"replayed"`
}

// RegisterPayment submits a party-scoped or general payment.
// A request without an idempotency key is given a fresh one. A key already
// applied to this folio is replayed before the folio status is checked.
func (o *Orchestrator) RegisterPayment(ctx context.Context, folio models.Folio, req models.PaymentRequest) (*PaymentResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = o.keys.Key(idempotency.KindPayment)
	}
	fingerprint, err := idempotency.Fingerprint(paymentParams(req))
	if err != nil {
		return nil, err
	}

	prior, found, err := o.lookup(ctx, OpRegisterPayment, folio.ID, req.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if found {
		o.logger.Info("Payment replayed", "folio_id", folio.ID, "idempotency_key", req.IdempotencyKey)
		return &PaymentResult{Folio: o.reconcile(prior.Folio), IdempotencyKey: req.IdempotencyKey, Replayed: true}, nil
	}

	if !folio.Status.CanMutate() {
		return nil, &StateViolationError{FolioID: folio.ID, Status: folio.Status, Op: OpRegisterPayment}
	}
	if err := calculator.ValidatePayment(folio, req); err != nil {
		return nil, err
	}

	release, err := o.acquire(folio.ID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	updated, replayed, err := o.submitPayment(ctx, folio.ID, req)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Folio: *updated, IdempotencyKey: req.IdempotencyKey, Replayed: replayed}, nil
}

func (o *Orchestrator) submitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, bool, error) {
	fingerprint, err := idempotency.Fingerprint(paymentParams(req))
	if err != nil {
		return nil, false, err
	}

	out, replayed, err := o.runOnce(ctx, idempotency.KindPayment, OpRegisterPayment, folioID, req.IdempotencyKey, fingerprint, nil,
		func(ctx context.Context) (*models.Folio, error) {
			return o.backend.SubmitPayment(ctx, folioID, req)
		})
	if err != nil {
		return nil, false, err
	}

	o.logger.Info("Payment registered",
		"folio_id", folioID,
		"amount", req.Amount.String(),
		"method", req.Method,
		"party_id", req.PartyID,
		"idempotency_key", req.IdempotencyKey,
		"replayed", replayed,
	)
	reconciled := o.reconcile(out.Folio)
	return &reconciled, replayed, nil
}

// paymentParams is the part of a payment request that identifies it.
func paymentParams(req models.PaymentRequest) any {
	req.IdempotencyKey = ""
	return req
}

// outcome is what the idempotency store keeps for one applied operation.
type outcome struct {
	Folio models.Folio     `json:"folio"`
	Plan  *calculator.Plan `json:"plan,omitempty"`
}

// lookup answers a key from the idempotency store. A record left by another
// folio or by different parameters is a mismatch. A store failure counts as
// not found; the backend deduplicates on its own.
func (o *Orchestrator) lookup(ctx context.Context, op, folioID, key, fingerprint string) (*outcome, bool, error) {
	rec, found, err := o.store.Load(ctx, key)
	if err != nil {
		o.logger.Warn("Idempotency store lookup failed; relying on backend deduplication",
			"folio_id", folioID, "idempotency_key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}

	if rec.FolioID != folioID {
		return nil, false, fmt.Errorf("%s key %s belongs to folio %s: %w", op, key, rec.FolioID, idempotency.ErrFingerprintMismatch)
	}
	if err := rec.Matches(fingerprint); err != nil {
		return nil, false, fmt.Errorf("%s key %s: %w", op, key, err)
	}
	var stored outcome
	if err := rec.Decode(&stored); err != nil {
		return nil, false, err
	}
	o.recorder.Replayed(op)
	return &stored, true, nil
}

// runOnce performs call at most once per key and records its outcome along
// with plan, if any.
//
// A key found in the store with the same fingerprint is answered from the
// stored outcome without calling the backend. The backend call itself runs
// detached from ctx cancellation: once dispatched it is always awaited.
func (o *Orchestrator) runOnce(
	ctx context.Context,
	kind idempotency.OperationKind,
	op, folioID, key, fingerprint string,
	plan *calculator.Plan,
	call func(ctx context.Context) (*models.Folio, error),
) (*outcome, bool, error) {
	prior, found, err := o.lookup(ctx, op, folioID, key, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if found {
		return prior, true, nil
	}

	detached := context.WithoutCancel(ctx)
	result, err := call(detached)
	if err != nil {
		o.logger.Error("Collaborator call failed",
			"op", op, "folio_id", folioID, "idempotency_key", key, "error", err)
		return nil, false, &CollaboratorError{Op: op, FolioID: folioID, IdempotencyKey: key, Err: err}
	}

	out := &outcome{Folio: *result, Plan: plan}
	rec, err := idempotency.NewRecord(kind, folioID, fingerprint, out)
	if err == nil {
		_, err = o.store.Save(detached, key, rec, o.recordTTL)
	}
	if err != nil {
		o.logger.Warn("Failed to record idempotent result",
			"folio_id", folioID, "idempotency_key", key, "error", err)
	}
	return out, false, nil
}

// reconcile recomputes totals and logs integrity warnings.
func (o *Orchestrator) reconcile(folio models.Folio) models.Folio {
	out, recErr := calculator.Reconcile(folio)
	if recErr != nil {
		o.recorder.IntegrityWarning()
		o.logger.Warn("Folio failed reconciliation",
			"folio_id", folio.ID,
			"control_diff", recErr.ControlDiff.String(),
			"error", recErr.Error(),
		)
	}
	return out
}

// acquire claims the folio for one mutating operation.
func (o *Orchestrator) acquire(folioID, attemptID string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if current, busy := o.inflight[folioID]; busy {
		return nil, &ConcurrentAttemptError{FolioID: folioID, AttemptID: current}
	}
	o.inflight[folioID] = attemptID
	return func() {
		o.mu.Lock()
		delete(o.inflight, folioID)
		o.mu.Unlock()
	}, nil
}

// InFlight reports the attempt currently holding the folio, if any.
func (o *Orchestrator) InFlight(folioID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.inflight[folioID]
	return id, ok
}

// IsReplayMismatch reports whether err means an idempotency key was reused
// with different parameters.
func IsReplayMismatch(err error) bool {
	return errors.Is(err, idempotency.ErrFingerprintMismatch)
}
