// Package models defines the folio read-model shared by the calculator,
// the settlement orchestrator, the reference ledger, and the RPC layer.
//
// # Models
//
//   - Folio: the aggregate root for one stay, with its responsible parties
//     and folio-level totals
//   - ResponsibleParty: someone liable for part of the folio
//   - DistributionRequest / AppliedDistribution: intent and resolved result of
//     assigning unassigned charges to parties
//   - PaymentRequest / CloseRequest: the other two mutating operations
//   - LedgerEvent: one entry of the append-only audit trail
//
// # Design Principles
//
// 1. **Snapshots are values**: a Folio is fetched, passed in, and returned.
// Nothing in this package caches or mutates shared state.
// 2. **IDs, not pointers**: parties are referenced by ID strings.
// 3. **Money is decimal**: every amount is a money.Money rounded to cents.
package models
