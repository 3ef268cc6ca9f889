package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
)

// fakeBackend is a scripted in-memory Collaborator.
type fakeBackend struct {
	mu      sync.Mutex
	folio   models.Folio
	charges money.Money
	applied map[string]bool
	calls   map[string]int

	// One-shot failures, consumed by the next matching call.
	failPayment error
	failClose   error

	// When set, SubmitPayment signals entered and waits on release.
	entered chan struct{}
	release chan struct{}

	// ctxErrs records ctx.Err() as seen when a mutating call returns.
	ctxErrs []error
}

func newFakeBackend(folio models.Folio) *fakeBackend {
	b := &fakeBackend{
		folio:   folio.Clone(),
		charges: folio.ReportedTotals.TotalCharges,
		applied: make(map[string]bool),
		calls:   make(map[string]int),
	}
	b.recompute()
	return b
}

func (b *fakeBackend) recompute() {
	distributed, paid := money.Zero(), money.Zero()
	for _, p := range b.folio.Parties {
		distributed = distributed.Add(p.AssignedAmount)
		paid = paid.Add(p.PaidAmount)
	}
	b.folio.ReportedTotals = models.Totals{
		TotalCharges:      b.charges,
		DistributedAmount: distributed,
		PaymentsTotal:     paid,
		GlobalBalance:     distributed.Sub(paid),
	}
	b.folio.Totals = b.folio.ReportedTotals
	b.folio.UnassignedAmount = b.charges.Sub(distributed)
}

func (b *fakeBackend) snapshot() *models.Folio {
	f := b.folio.Clone()
	return &f
}

func (b *fakeBackend) callCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) party(id string) *models.ResponsibleParty {
	for i := range b.folio.Parties {
		if b.folio.Parties[i].ID == id {
			return &b.folio.Parties[i]
		}
	}
	return nil
}

func (b *fakeBackend) GetFolioSnapshot(ctx context.Context, folioID string) (*models.Folio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[OpGetSnapshot]++
	return b.snapshot(), nil
}

func (b *fakeBackend) SubmitDistribution(ctx context.Context, folioID string, dist models.AppliedDistribution) (*models.Folio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[OpDistribute]++
	if b.applied[dist.IdempotencyKey] {
		return b.snapshot(), nil
	}
	for _, e := range dist.Entries {
		p := b.party(e.PartyID)
		p.AssignedAmount = p.AssignedAmount.Add(e.Amount)
	}
	b.applied[dist.IdempotencyKey] = true
	b.recompute()
	return b.snapshot(), nil
}

func (b *fakeBackend) SubmitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[OpRegisterPayment]++
	b.ctxErrs = append(b.ctxErrs, ctx.Err())

	if b.failPayment != nil {
		err := b.failPayment
		b.failPayment = nil
		return nil, err
	}
	if b.applied[req.IdempotencyKey] {
		return b.snapshot(), nil
	}

	partyID := req.PartyID
	if partyID == "" {
		partyID = b.folio.TitularPartyID
	}
	p := b.party(partyID)
	p.PaidAmount = p.PaidAmount.Add(req.Amount)
	b.applied[req.IdempotencyKey] = true
	b.recompute()
	return b.snapshot(), nil
}

func (b *fakeBackend) CloseFolio(ctx context.Context, folioID string, req models.CloseRequest) (*models.Folio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[OpCloseFolio]++

	if b.failClose != nil {
		err := b.failClose
		b.failClose = nil
		return nil, err
	}
	if b.applied[req.IdempotencyKey] {
		return b.snapshot(), nil
	}
	if !b.folio.Status.CanMutate() {
		return nil, errors.New("folio is not active")
	}

	if b.folio.UnassignedAmount.IsPositive() {
		p := b.party(req.TitularPartyID)
		p.AssignedAmount = p.AssignedAmount.Add(b.folio.UnassignedAmount)
	}
	b.folio.Status = models.FolioClosed
	b.applied[req.IdempotencyKey] = true
	b.recompute()
	return b.snapshot(), nil
}

func (b *fakeBackend) GetHistory(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[OpGetHistory]++
	return &models.HistoryPage{Events: []models.LedgerEvent{}, Page: page.Page, PageSize: page.PageSize}, nil
}

// countingRecorder is a Recorder that counts events.
type countingRecorder struct {
	mu          sync.Mutex
	transitions []string
	failed      []string
	replays     map[string]int
	warnings    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{replays: make(map[string]int)}
}

func (r *countingRecorder) Transition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *countingRecorder) AttemptFailed(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, state)
}

func (r *countingRecorder) Replayed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays[op]++
}

func (r *countingRecorder) IntegrityWarning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++
}

// testFolio builds an active folio with consistent reported totals.
// Parties are given as id, assigned, paid triples.
func testFolio(charges string, parties ...[3]string) models.Folio {
	f := models.Folio{
		ID:       "folio-1",
		Status:   models.FolioActive,
		Currency: "EUR",
	}
	for _, p := range parties {
		f.Parties = append(f.Parties, models.ResponsibleParty{
			ID:             p[0],
			DisplayName:    p[0],
			AssignedAmount: money.MustFromString(p[1]),
			PaidAmount:     money.MustFromString(p[2]),
		})
	}
	if len(f.Parties) > 0 {
		f.TitularPartyID = f.Parties[0].ID
	}

	b := newFakeBackend(models.Folio{})
	b.folio = f
	b.charges = money.MustFromString(charges)
	b.recompute()
	return b.folio
}
