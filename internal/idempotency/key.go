// Package idempotency generates per-operation keys and stores the result of
// each keyed operation so a retried request is answered from the stored
// result instead of being applied again.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the kind of mutating operation a key belongs to.
type OperationKind string

const (
	KindDistribution OperationKind = "distribution"
	KindPayment      OperationKind = "payment"
	KindClose        OperationKind = "close"
)

// IsValid reports whether k is a known operation kind.
func (k OperationKind) IsValid() bool {
	switch k {
	case KindDistribution, KindPayment, KindClose:
		return true
	}
	return false
}

// Generator produces keys of the form <kind>-<unix millis>-<random suffix>.
// Collisions only cause a harmless replay, so the suffix does not need to
// be cryptographically strong.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a Generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock returns a Generator with an injected clock.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Key returns a new key for the given operation kind.
func (g *Generator) Key(kind OperationKind) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s", kind, g.now().UnixMilli(), suffix)
}

var defaultGenerator = NewGenerator()

// NewKey returns a new key for the given operation kind.
func NewKey(kind OperationKind) string {
	return defaultGenerator.Key(kind)
}

// KindOf extracts the operation kind from a generated key.
func KindOf(key string) (OperationKind, bool) {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 {
		return "", false
	}
	kind := OperationKind(parts[0])
	if !kind.IsValid() {
		return "", false
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return "", false
	}
	return kind, true
}

// Fingerprint hashes the parameters of an operation so a key reused with
// different parameters can be told apart from a genuine retry.
func Fingerprint(params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint parameters: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
