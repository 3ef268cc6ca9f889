package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrFingerprintMismatch is returned when a key is reused with different
// parameters than the ones it was first recorded with.
var ErrFingerprintMismatch = errors.New("idempotency key reused with different parameters")

// DefaultTTL is how long a result stays replayable.
const DefaultTTL = 72 * time.Hour

// Record is the stored outcome of one keyed operation.
type Record struct {
	Kind        OperationKind   `json:"kind"`
	FolioID     string          `json:"folioId"`
	Fingerprint string          `json:"fingerprint"`
	Result      json.RawMessage `json:"result"`
	SavedAt     time.Time       `json:"savedAt"`
}

// Decode unmarshals the stored result into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode stored result: %w", err)
	}
	return nil
}

// Matches reports whether the record was produced by the same parameters.
func (r Record) Matches(fingerprint string) error {
	if r.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	return nil
}

// NewRecord encodes result into a Record.
func NewRecord(kind OperationKind, folioID, fingerprint string, result any) (Record, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return Record{
		Kind:        kind,
		FolioID:     folioID,
		Fingerprint: fingerprint,
		Result:      data,
		SavedAt:     time.Now().UTC(),
	}, nil
}

// Store keeps operation results keyed by idempotency key.
type Store interface {
	// Load returns the record for key and whether it exists.
	Load(ctx context.Context, key string) (Record, bool, error)

	// Save stores rec under key unless the key already exists.
	// Returns true if the record was newly stored.
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
