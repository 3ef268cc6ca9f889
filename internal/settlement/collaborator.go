package settlement

import (
	"context"

	"github.com/mmynk/foliodesk/internal/models"
)

// Collaborator is the backend that owns folio state. Every mutating call
// carries an idempotency key and must be applied at most once per key.
type Collaborator interface {
	GetFolioSnapshot(ctx context.Context, folioID string) (*models.Folio, error)
	SubmitDistribution(ctx context.Context, folioID string, dist models.AppliedDistribution) (*models.Folio, error)
	SubmitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, error)
	CloseFolio(ctx context.Context, folioID string, req models.CloseRequest) (*models.Folio, error)
	GetHistory(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error)
}

// Recorder receives orchestrator events. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	Transition(from, to string)
	AttemptFailed(state string)
	Replayed(op string)
	IntegrityWarning()
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, string) {}
func (nopRecorder) AttemptFailed(string)      {}
func (nopRecorder) Replayed(string)           {}
func (nopRecorder) IntegrityWarning()         {}
