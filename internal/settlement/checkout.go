package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/idempotency"
	"github.com/mmynk/foliodesk/internal/models"
)

// State is a checkout state machine state.
type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateRegisteringPayment State = "registering_payment"
	StateClosing            State = "closing"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Progress is the progress percentage shown on entering s.
func (s State) Progress() int {
	switch s {
	case StateValidating:
		return 20
	case StateRegisteringPayment:
		return 50
	case StateClosing:
		return 80
	case StateCompleted:
		return 100
	}
	return 0
}

// Description is the operator-facing label for s.
func (s State) Description() string {
	switch s {
	case StateIdle:
		return "Ready to check out"
	case StateValidating:
		return "Validating folio"
	case StateRegisteringPayment:
		return "Registering payment"
	case StateClosing:
		return "Closing folio"
	case StateCompleted:
		return "Checkout completed"
	case StateFailed:
		return "Checkout failed"
	}
	return string(s)
}

// activity names the work done in s, for use mid-sentence.
func (s State) activity() string {
	switch s {
	case StateIdle:
		return "starting checkout"
	case StateValidating:
		return "validating the folio"
	case StateRegisteringPayment:
		return "registering the payment"
	case StateClosing:
		return "closing the folio"
	}
	return strings.ToLower(s.Description())
}

// Transition records one state change of an attempt.
type Transition struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	Progress int       `json:"progress"`
	At       time.Time `json:"at"`
}

// Attempt is one run of the checkout state machine.
type Attempt struct {
	ID          string       `json:"id"`
	FolioID     string       `json:"folioId"`
	State       State        `json:"state"`
	Progress    int          `json:"progress"`
	Description string       `json:"description"`
	Transitions []Transition `json:"transitions"`
	PaymentKey  string       `json:"paymentKey,omitempty"`
	CloseKey    string       `json:"closeKey,omitempty"`

	// Error is the failure message, preserved verbatim.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`

	lastGood int
}

// CheckoutRequest parameterizes BeginCheckout.
type CheckoutRequest struct {
	// TitularPartyID overrides the folio's titular party for reclassification.
	TitularPartyID string `json:"titularPartyId,omitempty"`

	// PaymentMethod is used when an outstanding balance is collected.
	// Defaults to card.
	PaymentMethod models.PaymentMethod `json:"paymentMethod,omitempty"`

	// PaymentPartyID scopes the collected payment to one party. Empty means
	// a general payment.
	PaymentPartyID string `json:"paymentPartyId,omitempty"`

	Note string `json:"note,omitempty"`
}

// CheckoutResult is what BeginCheckout returns, on success and on failure.
type CheckoutResult struct {
	Attempt    Attempt                       `json:"attempt"`
	Validation calculator.CheckoutValidation `json:"validation"`
	Folio      models.Folio                  `json:"folio"`
}

// keyState holds the keys of a failed attempt so a retry reuses them.
type keyState struct {
	paymentKey         string
	paymentFingerprint string
	closeKey           string
	closeFingerprint   string
}

// ValidateCheckout runs the pre-checkout rules against a reconciled snapshot.
func (o *Orchestrator) ValidateCheckout(folio models.Folio) (models.Folio, calculator.CheckoutValidation) {
	folio = o.reconcile(folio)
	return folio, calculator.ValidateCheckout(folio, o.policy)
}

// LastAttempt returns the most recent finished checkout attempt for a folio.
func (o *Orchestrator) LastAttempt(folioID string) (Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.attempts[folioID]
	return a, ok
}

// BeginCheckout runs validate → pay → close against the caller's snapshot.
//
// The returned result is never nil once the attempt has started; on failure
// it carries the failed attempt alongside the error. A failed attempt may be
// retried by calling BeginCheckout again with a fresh snapshot. Keys from the
// failed attempt are reused when the parameters match, so a payment or close
// that did go through is not applied twice.
func (o *Orchestrator) BeginCheckout(ctx context.Context, folio models.Folio, req CheckoutRequest) (*CheckoutResult, error) {
	attempt := &Attempt{
		ID:          uuid.New().String(),
		FolioID:     folio.ID,
		State:       StateIdle,
		Description: StateIdle.Description(),
		Transitions: []Transition{},
		StartedAt:   o.now().UTC(),
	}

	release, err := o.acquire(folio.ID, attempt.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &CheckoutResult{Folio: folio}
	fail := func(err error) (*CheckoutResult, error) {
		o.fail(ctx, attempt, err)
		result.Attempt = o.finish(attempt)
		return result, err
	}

	o.advance(attempt, StateValidating)

	if !folio.Status.CanMutate() {
		return fail(&StateViolationError{FolioID: folio.ID, Status: folio.Status, Op: "check out"})
	}

	reconciled, validation := o.ValidateCheckout(folio)
	result.Folio = reconciled
	result.Validation = validation
	if !validation.CanCheckout {
		return fail(&CheckoutBlockedError{FolioID: folio.ID, Issues: validation.Errors})
	}

	retained := o.retainedKeys(folio.ID)
	current := keyState{}

	balance := reconciled.Totals.GlobalBalance
	if balance.ExceedsEpsilon() {
		o.advance(attempt, StateRegisteringPayment)

		method := req.PaymentMethod
		if method == "" {
			method = models.PaymentCard
		}
		payReq := models.PaymentRequest{
			Amount:  balance,
			Method:  method,
			PartyID: req.PaymentPartyID,
			Note:    req.Note,
		}
		if err := calculator.ValidatePayment(reconciled, payReq); err != nil {
			return fail(err)
		}

		fp, err := idempotency.Fingerprint(paymentParams(payReq))
		if err != nil {
			return fail(err)
		}
		payReq.IdempotencyKey = o.keys.Key(idempotency.KindPayment)
		if retained.paymentKey != "" && retained.paymentFingerprint == fp {
			payReq.IdempotencyKey = retained.paymentKey
		}
		current.paymentKey, current.paymentFingerprint = payReq.IdempotencyKey, fp
		attempt.PaymentKey = payReq.IdempotencyKey

		paid, _, err := o.submitPayment(ctx, folio.ID, payReq)
		if err != nil {
			o.retainKeys(folio.ID, current)
			return fail(err)
		}
		result.Folio = *paid
	}

	o.advance(attempt, StateClosing)

	titular := req.TitularPartyID
	if titular == "" {
		titular = reconciled.TitularPartyID
	}
	if titular == "" && len(reconciled.Parties) > 0 {
		titular = reconciled.Parties[0].ID
	}
	closeReq := models.CloseRequest{TitularPartyID: titular}
	fp, err := idempotency.Fingerprint(closeReq)
	if err != nil {
		return fail(err)
	}
	closeReq.IdempotencyKey = o.keys.Key(idempotency.KindClose)
	if retained.closeKey != "" && retained.closeFingerprint == fp {
		closeReq.IdempotencyKey = retained.closeKey
	}
	current.closeKey, current.closeFingerprint = closeReq.IdempotencyKey, fp
	attempt.CloseKey = closeReq.IdempotencyKey

	out, replayed, err := o.runOnce(ctx, idempotency.KindClose, OpCloseFolio, folio.ID, closeReq.IdempotencyKey, fp, nil,
		func(ctx context.Context) (*models.Folio, error) {
			return o.backend.CloseFolio(ctx, folio.ID, closeReq)
		})
	if err != nil {
		o.retainKeys(folio.ID, current)
		return fail(err)
	}
	closed := out.Folio
	if closed.Status != models.FolioClosed {
		o.retainKeys(folio.ID, current)
		return fail(&CollaboratorError{
			Op:             OpCloseFolio,
			FolioID:        folio.ID,
			IdempotencyKey: closeReq.IdempotencyKey,
			Err:            fmt.Errorf("close returned folio with status %s", closed.Status),
		})
	}
	result.Folio = o.reconcile(closed)

	o.advance(attempt, StateCompleted)
	o.retainKeys(folio.ID, keyState{})
	result.Attempt = o.finish(attempt)

	o.logger.Info("Checkout completed",
		"folio_id", folio.ID,
		"attempt_id", attempt.ID,
		"payment_key", attempt.PaymentKey,
		"close_key", attempt.CloseKey,
		"close_replayed", replayed,
	)
	return result, nil
}

// advance moves the attempt to the next state. The progress of the state
// being left becomes the last known-good value.
func (o *Orchestrator) advance(a *Attempt, to State) {
	from := a.State
	a.lastGood = a.Progress
	a.State = to
	a.Progress = to.Progress()
	a.Description = to.Description()
	a.Transitions = append(a.Transitions, Transition{From: from, To: to, Progress: a.Progress, At: o.now().UTC()})
	o.recorder.Transition(string(from), string(to))
}

// fail moves the attempt to failed and resets progress to the last
// known-good value.
func (o *Orchestrator) fail(ctx context.Context, a *Attempt, err error) {
	from := a.State
	a.State = StateFailed
	a.Progress = a.lastGood
	a.Description = fmt.Sprintf("%s while %s", StateFailed.Description(), from.activity())
	a.Err = err
	a.Error = err.Error()
	a.Transitions = append(a.Transitions, Transition{From: from, To: StateFailed, Progress: a.Progress, At: o.now().UTC()})
	o.recorder.Transition(string(from), string(StateFailed))
	o.recorder.AttemptFailed(string(from))

	o.logger.Error("Checkout attempt failed",
		"folio_id", a.FolioID,
		"attempt_id", a.ID,
		"state", from,
		"progress", a.Progress,
		"error", err,
	)

	var collabErr *CollaboratorError
	if errors.As(err, &collabErr) {
		o.logRecentHistory(ctx, a.FolioID)
	}
}

func (o *Orchestrator) finish(a *Attempt) Attempt {
	a.FinishedAt = o.now().UTC()
	snapshot := *a
	snapshot.Transitions = append([]Transition(nil), a.Transitions...)

	o.mu.Lock()
	o.attempts[a.FolioID] = snapshot
	o.mu.Unlock()
	return snapshot
}

func (o *Orchestrator) retainedKeys(folioID string) keyState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retained[folioID]
}

func (o *Orchestrator) retainKeys(folioID string, ks keyState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ks == (keyState{}) {
		delete(o.retained, folioID)
		return
	}
	o.retained[folioID] = ks
}

// logRecentHistory logs the last few ledger events for diagnosis.
func (o *Orchestrator) logRecentHistory(ctx context.Context, folioID string) {
	page, err := o.backend.GetHistory(context.WithoutCancel(ctx), folioID, "", models.PageRequest{Page: 1, PageSize: 5})
	if err != nil {
		o.logger.Debug("Could not fetch history for failed checkout", "folio_id", folioID, "error", err)
		return
	}
	for _, ev := range page.Events {
		o.logger.Info("Recent ledger event",
			"folio_id", folioID,
			"kind", ev.Kind,
			"party_id", ev.PartyID,
			"amount", ev.Amount.String(),
			"idempotency_key", ev.IdempotencyKey,
		)
	}
}
