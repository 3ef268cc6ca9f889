package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
	"github.com/mmynk/foliodesk/internal/storage"
)

// loadFolio reads a folio with its parties and the ledger aggregates.
//
// Per-party figures and folio-level totals come from separate queries, so an
// orphaned entry (one whose party row is gone) shows up as a control diff
// once the snapshot is reconciled.
func loadFolio(ctx context.Context, q querier, folioID string) (*models.Folio, error) {
	folio := &models.Folio{}
	var updatedAt int64
	err := q.QueryRowContext(ctx,
		"SELECT id, status, currency, COALESCE(titular_party_id, ''), updated_at FROM folios WHERE id = ?",
		folioID,
	).Scan(&folio.ID, &folio.Status, &folio.Currency, &folio.TitularPartyID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folio %s: %w", folioID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folio: %w", err)
	}
	folio.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	parties, err := loadParties(ctx, q, folioID)
	if err != nil {
		return nil, err
	}
	folio.Parties = parties

	var charges, distributed, payments int64
	err = q.QueryRowContext(ctx,
		`SELECT
		    COALESCE(SUM(CASE WHEN kind = 'charge' THEN amount_cents END), 0),
		    COALESCE(SUM(CASE WHEN kind IN ('distribution', 'reclassification') THEN amount_cents END), 0),
		    COALESCE(SUM(CASE WHEN kind = 'payment' THEN amount_cents END), 0)
		 FROM ledger_entries WHERE folio_id = ?`,
		folioID,
	).Scan(&charges, &distributed, &payments)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger: %w", err)
	}

	reported := models.Totals{
		TotalCharges:      money.FromCents(charges),
		DistributedAmount: money.FromCents(distributed),
		PaymentsTotal:     money.FromCents(payments),
		GlobalBalance:     money.FromCents(distributed - payments),
	}
	folio.ReportedTotals = reported
	folio.Totals = reported
	folio.UnassignedAmount = money.FromCents(charges - distributed)

	return folio, nil
}

func loadParties(ctx context.Context, q querier, folioID string) ([]models.ResponsibleParty, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT p.id, p.display_name,
		    COALESCE(SUM(CASE WHEN e.kind IN ('distribution', 'reclassification') THEN e.amount_cents END), 0),
		    COALESCE(SUM(CASE WHEN e.kind = 'payment' THEN e.amount_cents END), 0)
		 FROM parties p
		 LEFT JOIN ledger_entries e ON e.folio_id = p.folio_id AND e.party_id = p.id
		 WHERE p.folio_id = ?
		 GROUP BY p.id, p.display_name, p.position
		 ORDER BY p.position`,
		folioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get parties: %w", err)
	}
	defer rows.Close()

	parties := []models.ResponsibleParty{}
	for rows.Next() {
		var p models.ResponsibleParty
		var assigned, paid int64
		if err := rows.Scan(&p.ID, &p.DisplayName, &assigned, &paid); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.AssignedAmount = money.FromCents(assigned)
		p.PaidAmount = money.FromCents(paid)
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parties: %w", err)
	}
	return parties, nil
}
