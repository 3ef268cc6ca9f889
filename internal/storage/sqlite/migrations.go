package sqlite

import "database/sql"

// schema sets up the ledger tables. It runs on startup.
// Amounts are stored as integer cents.
const schema = `
CREATE TABLE IF NOT EXISTS folios (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    currency TEXT NOT NULL,
    titular_party_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS parties (
    id TEXT PRIMARY KEY,
    folio_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    position INTEGER NOT NULL,
    FOREIGN KEY (folio_id) REFERENCES folios(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    folio_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    party_id TEXT,
    amount_cents INTEGER NOT NULL,
    idempotency_key TEXT,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (folio_id) REFERENCES folios(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key TEXT PRIMARY KEY,
    folio_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (folio_id) REFERENCES folios(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_parties_folio_id ON parties(folio_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_folio_id ON ledger_entries(folio_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_folio_kind ON ledger_entries(folio_id, kind);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
