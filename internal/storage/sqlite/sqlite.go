// Package sqlite provides a SQLite-backed implementation of the storage.Ledger interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/foliodesk/internal/idempotency"
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/money"
	"github.com/mmynk/foliodesk/internal/storage"
)

// Ensure LedgerStore implements storage.Ledger
var _ storage.Ledger = (*LedgerStore)(nil)

// LedgerStore implements storage.Ledger as an append-only ledger in SQLite.
type LedgerStore struct {
	db  *sql.DB
	now func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New creates a new LedgerStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*LedgerStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer and pragmas are per connection.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &LedgerStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

// OpenFolio creates an active folio and its parties.
func (s *LedgerStore) OpenFolio(ctx context.Context, req storage.OpenFolioRequest) (*models.Folio, error) {
	if len(req.Parties) == 0 {
		return nil, fmt.Errorf("a folio needs at least one responsible party: %w", storage.ErrInvalidOperation)
	}

	folioID := req.ID
	if folioID == "" {
		folioID = uuid.New().String()
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	partyIDs := make([]string, len(req.Parties))
	for i, p := range req.Parties {
		partyIDs[i] = p.ID
		if partyIDs[i] == "" {
			partyIDs[i] = uuid.New().String()
		}
	}

	titular := partyIDs[0]
	if req.TitularPartyID != "" {
		found := false
		for _, id := range partyIDs {
			if id == req.TitularPartyID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("titular party %s is not among the folio parties: %w", req.TitularPartyID, storage.ErrInvalidOperation)
		}
		titular = req.TitularPartyID
	}

	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO folios (id, status, currency, titular_party_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		folioID, models.FolioActive, currency, titular, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert folio: %w", err)
	}

	for i, p := range req.Parties {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO parties (id, folio_id, display_name, position) VALUES (?, ?, ?, ?)",
			partyIDs[i], folioID, p.DisplayName, i,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert party: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return loadFolio(ctx, s.db, folioID)
}

// PostCharge adds an unassigned charge to an active folio.
func (s *LedgerStore) PostCharge(ctx context.Context, folioID string, req storage.ChargeRequest) (*models.Folio, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("charge amount must be positive, got %s: %w", req.Amount, storage.ErrInvalidOperation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	folio, err := loadFolio(ctx, tx, folioID)
	if err != nil {
		return nil, err
	}
	if !folio.Status.CanMutate() {
		return nil, fmt.Errorf("folio %s is %s: %w", folioID, folio.Status, storage.ErrFolioNotActive)
	}

	now := s.now()
	if err := insertEntry(ctx, tx, folioID, models.EventCharge, "", req.Amount, "", req.Description, now); err != nil {
		return nil, err
	}
	if err := touchFolio(ctx, tx, folioID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return loadFolio(ctx, s.db, folioID)
}

// GetFolioSnapshot reads the current state of a folio.
func (s *LedgerStore) GetFolioSnapshot(ctx context.Context, folioID string) (*models.Folio, error) {
	return loadFolio(ctx, s.db, folioID)
}

// mutation applies one idempotent ledger change inside a transaction.
type mutation func(ctx context.Context, tx *sql.Tx, folio *models.Folio, now time.Time) error

// mutate runs fn at most once per idempotency key.
//
// A key seen before with the same fingerprint is a replay: nothing is written
// and the current snapshot is returned, even when the folio has been closed
// since. A key seen with a different fingerprint is rejected.
func (s *LedgerStore) mutate(ctx context.Context, folioID, key string, kind models.EventKind, params any, fn mutation) (*models.Folio, error) {
	if key == "" {
		return nil, fmt.Errorf("idempotency key is required: %w", storage.ErrInvalidOperation)
	}
	fingerprint, err := idempotency.Fingerprint(params)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	folio, err := loadFolio(ctx, tx, folioID)
	if err != nil {
		return nil, err
	}

	replay, err := checkKey(ctx, tx, key, folioID, fingerprint)
	if err != nil {
		return nil, err
	}
	if replay {
		return folio, nil
	}

	if !folio.Status.CanMutate() {
		return nil, fmt.Errorf("folio %s is %s: %w", folioID, folio.Status, storage.ErrFolioNotActive)
	}

	now := s.now()
	if err := fn(ctx, tx, folio, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO idempotency_keys (key, folio_id, kind, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)",
		key, folioID, kind, fingerprint, now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record idempotency key: %w", err)
	}
	if err := touchFolio(ctx, tx, folioID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return loadFolio(ctx, s.db, folioID)
}

// checkKey reports whether key was already applied with the same fingerprint.
func checkKey(ctx context.Context, q querier, key, folioID, fingerprint string) (bool, error) {
	var storedFolio, storedFingerprint string
	err := q.QueryRowContext(ctx,
		"SELECT folio_id, fingerprint FROM idempotency_keys WHERE key = ?",
		key,
	).Scan(&storedFolio, &storedFingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if storedFolio != folioID || storedFingerprint != fingerprint {
		return false, fmt.Errorf("key %s: %w", key, storage.ErrKeyConflict)
	}
	return true, nil
}

func insertEntry(ctx context.Context, q querier, folioID string, kind models.EventKind, partyID string, amount money.Money, key, description string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, folio_id, kind, party_id, amount_cents, idempotency_key, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), folioID, kind, nullString(partyID), amount.Cents(), nullString(key), description, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s entry: %w", kind, err)
	}
	return nil
}

func touchFolio(ctx context.Context, q querier, folioID string, at time.Time) error {
	_, err := q.ExecContext(ctx, "UPDATE folios SET updated_at = ? WHERE id = ?", at.UnixMilli(), folioID)
	if err != nil {
		return fmt.Errorf("failed to update folio: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
