package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mmynk/foliodesk/internal/models"
)

// BreakerConfig configures BreakerCollaborator.
type BreakerConfig struct {
	Name string

	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration

	// Expected lists errors that are answers, not outages. They never count
	// as failures (a rejected payment does not mean the backend is down).
	Expected []error
}

// BreakerCollaborator wraps a Collaborator with a circuit breaker so a failing
// backend is not hammered by retries. Rejections while open surface as
// gobreaker.ErrOpenState, which the orchestrator reports as a CollaboratorError.
type BreakerCollaborator struct {
	next    Collaborator
	breaker *gobreaker.CircuitBreaker
}

var _ Collaborator = (*BreakerCollaborator)(nil)

// NewBreakerCollaborator creates a breaker-guarded Collaborator.
func NewBreakerCollaborator(next Collaborator, cfg BreakerConfig) *BreakerCollaborator {
	if cfg.Name == "" {
		cfg.Name = "ledger"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			for _, expected := range cfg.Expected {
				if errors.Is(err, expected) {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerCollaborator{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state as a string: closed, open, or half-open.
func (b *BreakerCollaborator) State() string {
	return b.breaker.State().String()
}

func (b *BreakerCollaborator) folio(fn func() (*models.Folio, error)) (*models.Folio, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Folio), nil
}

func (b *BreakerCollaborator) GetFolioSnapshot(ctx context.Context, folioID string) (*models.Folio, error) {
	return b.folio(func() (*models.Folio, error) {
		return b.next.GetFolioSnapshot(ctx, folioID)
	})
}

func (b *BreakerCollaborator) SubmitDistribution(ctx context.Context, folioID string, dist models.AppliedDistribution) (*models.Folio, error) {
	return b.folio(func() (*models.Folio, error) {
		return b.next.SubmitDistribution(ctx, folioID, dist)
	})
}

func (b *BreakerCollaborator) SubmitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, error) {
	return b.folio(func() (*models.Folio, error) {
		return b.next.SubmitPayment(ctx, folioID, req)
	})
}

func (b *BreakerCollaborator) CloseFolio(ctx context.Context, folioID string, req models.CloseRequest) (*models.Folio, error) {
	return b.folio(func() (*models.Folio, error) {
		return b.next.CloseFolio(ctx, folioID, req)
	})
}

func (b *BreakerCollaborator) GetHistory(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.GetHistory(ctx, folioID, kind, page)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.HistoryPage), nil
}
