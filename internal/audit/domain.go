// Package audit keeps the append-only record of every mutating action.
// Entries are never updated or deleted; retention is unbounded.
package audit

import (
	"errors"
	"time"
)

// Entry is one audit record. Details carries before/after snapshots and any
// action-specific context as a JSON document.
type Entry struct {
	ID            int64          `json:"id"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	EntityName    string         `json:"entityName,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Actor         string         `json:"actor"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// QueryFilters narrows an audit listing.
type QueryFilters struct {
	Actor      string
	EntityType string
	Action     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

var (
	// ErrStorageUnavailable wraps storage failures on the write path.
	ErrStorageUnavailable = errors.New("audit: storage unavailable")
	// ErrIncomplete indicates a record missing its required fields.
	ErrIncomplete = errors.New("audit: action, entity type and entity id are required")
)

// Well-known action names written by the stock core.
const (
	ActionMovementCreate   = "movement.create"
	ActionMovementEdit     = "movement.edit"
	ActionMovementDelete   = "movement.delete"
	ActionReconciliation   = "reconciliation.apply"
	ActionMinStockChange   = "item.min_stock_change"
	EntityTypeLedgerEntry  = "ledger_entry"
	EntityTypeItem         = "item"
	EntityTypeReconReport  = "reconciliation_report"
)
