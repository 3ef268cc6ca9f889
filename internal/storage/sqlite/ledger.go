package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
	"github.com/mmynk/foliodesk/internal/storage"
)

// SubmitDistribution appends one distribution entry per party.
func (s *LedgerStore) SubmitDistribution(ctx context.Context, folioID string, dist models.AppliedDistribution) (*models.Folio, error) {
	params := struct {
		FolioID  string                     `json:"folioId"`
		Strategy models.StrategyKind        `json:"strategy"`
		Entries  []models.DistributionEntry `json:"entries"`
	}{folioID, dist.Strategy, dist.Entries}

	return s.mutate(ctx, folioID, dist.IdempotencyKey, models.EventDistribution, params,
		func(ctx context.Context, tx *sql.Tx, folio *models.Folio, now time.Time) error {
			if len(dist.Entries) == 0 {
				return fmt.Errorf("distribution has no entries: %w", storage.ErrInvalidOperation)
			}
			for _, e := range dist.Entries {
				if !folio.HasParty(e.PartyID) {
					return fmt.Errorf("party %s is not on folio %s: %w", e.PartyID, folioID, storage.ErrInvalidOperation)
				}
				if !e.Amount.IsPositive() {
					return fmt.Errorf("distribution to %s must be positive, got %s: %w", e.PartyID, e.Amount, storage.ErrInvalidOperation)
				}
			}
			total := dist.Total()
			if total.Cmp(folio.UnassignedAmount) > 0 && !total.Equal(folio.UnassignedAmount) {
				return fmt.Errorf("distribution of %s exceeds unassigned amount %s: %w", total, folio.UnassignedAmount, storage.ErrInvalidOperation)
			}

			desc := fmt.Sprintf("%s distribution", dist.Strategy)
			for _, e := range dist.Entries {
				if err := insertEntry(ctx, tx, folioID, models.EventDistribution, e.PartyID, e.Amount, dist.IdempotencyKey, desc, now); err != nil {
					return err
				}
			}
			return nil
		})
}

// SubmitPayment records a payment. A party-scoped payment is booked to that
// party; a general payment is allocated to parties that owe, oldest first.
func (s *LedgerStore) SubmitPayment(ctx context.Context, folioID string, req models.PaymentRequest) (*models.Folio, error) {
	params := struct {
		FolioID string               `json:"folioId"`
		Amount  money.Money          `json:"amount"`
		Method  models.PaymentMethod `json:"method"`
		PartyID string               `json:"partyId"`
		Note    string               `json:"note"`
	}{folioID, req.Amount, req.Method, req.PartyID, req.Note}

	return s.mutate(ctx, folioID, req.IdempotencyKey, models.EventPayment, params,
		func(ctx context.Context, tx *sql.Tx, folio *models.Folio, now time.Time) error {
			if !req.Method.IsValid() {
				return fmt.Errorf("unknown payment method %q: %w", req.Method, storage.ErrInvalidOperation)
			}
			if !req.Amount.IsPositive() {
				return fmt.Errorf("payment amount must be positive, got %s: %w", req.Amount, storage.ErrInvalidOperation)
			}

			desc := fmt.Sprintf("%s payment", req.Method)
			if req.Note != "" {
				desc = fmt.Sprintf("%s: %s", desc, req.Note)
			}

			if req.PartyID != "" {
				if !folio.HasParty(req.PartyID) {
					return fmt.Errorf("party %s is not on folio %s: %w", req.PartyID, folioID, storage.ErrInvalidOperation)
				}
				return insertEntry(ctx, tx, folioID, models.EventPayment, req.PartyID, req.Amount, req.IdempotencyKey, desc, now)
			}

			allocations, err := calculator.AllocatePayment(*folio, req.Amount)
			if err != nil {
				return fmt.Errorf("%w: %w", err, storage.ErrInvalidOperation)
			}
			for _, a := range allocations {
				if err := insertEntry(ctx, tx, folioID, models.EventPayment, a.PartyID, a.Amount, req.IdempotencyKey, desc, now); err != nil {
					return err
				}
			}
			return nil
		})
}

// CloseFolio reclassifies the unassigned amount and every other party's
// outstanding balance to the titular party, then closes the folio.
func (s *LedgerStore) CloseFolio(ctx context.Context, folioID string, req models.CloseRequest) (*models.Folio, error) {
	params := struct {
		FolioID        string `json:"folioId"`
		TitularPartyID string `json:"titularPartyId"`
	}{folioID, req.TitularPartyID}

	return s.mutate(ctx, folioID, req.IdempotencyKey, models.EventClose, params,
		func(ctx context.Context, tx *sql.Tx, folio *models.Folio, now time.Time) error {
			titular := req.TitularPartyID
			if titular == "" {
				titular = folio.TitularPartyID
			}

			entries, err := calculator.ClosingReclassification(*folio, titular)
			if err != nil {
				return fmt.Errorf("%w: %w", err, storage.ErrInvalidOperation)
			}
			for _, e := range entries {
				desc := "reclassified to titular party at close"
				if e.PartyID != titular {
					desc = fmt.Sprintf("balance moved to titular party %s", titular)
				}
				if err := insertEntry(ctx, tx, folioID, models.EventReclassification, e.PartyID, e.Amount, req.IdempotencyKey, desc, now); err != nil {
					return err
				}
			}

			if err := insertEntry(ctx, tx, folioID, models.EventClose, titular, money.Zero(), req.IdempotencyKey, "folio closed", now); err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE folios SET status = ?, titular_party_id = ? WHERE id = ?",
				models.FolioClosed, titular, folioID,
			)
			if err != nil {
				return fmt.Errorf("failed to close folio: %w", err)
			}
			return nil
		})
}

// GetHistory returns one page of ledger entries, newest first.
func (s *LedgerStore) GetHistory(ctx context.Context, folioID string, kind models.EventKind, page models.PageRequest) (*models.HistoryPage, error) {
	if kind != "" && !kind.IsValid() {
		return nil, fmt.Errorf("unknown event kind %q: %w", kind, storage.ErrInvalidOperation)
	}
	page = page.Normalize()

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM folios WHERE id = ?", folioID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to get folio: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("folio %s: %w", folioID, storage.ErrNotFound)
	}

	where := "folio_id = ?"
	args := []any{folioID}
	if kind != "" {
		where += " AND kind = ?"
		args = append(args, kind)
	}

	var total int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, folio_id, kind, COALESCE(party_id, ''), amount_cents, COALESCE(idempotency_key, ''), description, created_at
		 FROM ledger_entries WHERE `+where+` ORDER BY seq DESC LIMIT ? OFFSET ?`,
		append(args, page.PageSize, page.Offset())...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	result := &models.HistoryPage{
		Events:   []models.LedgerEvent{},
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    total,
	}
	for rows.Next() {
		var ev models.LedgerEvent
		var cents, createdAt int64
		if err := rows.Scan(&ev.ID, &ev.FolioID, &ev.Kind, &ev.PartyID, &cents, &ev.IdempotencyKey, &ev.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		ev.Amount = money.FromCents(cents)
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		result.Events = append(result.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return result, nil
}
