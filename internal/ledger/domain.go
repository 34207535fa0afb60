// Package ledger keeps the append-only record of stock movements and derives
// stock projections from it. Both quantity tracks are frozen on each entry at
// creation time, so later catalog ratio changes never rewrite history.
package ledger

import (
	"errors"
	"time"

	"github.com/larderhq/larder/internal/units"
)

// Direction encodes the sign of a movement; quantities are stored unsigned.
type Direction string

const (
	// DirectionIn is an inbound movement.
	DirectionIn Direction = "in"
	// DirectionOut is an outbound movement.
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Source records what produced an entry.
type Source string

const (
	// SourceManual marks operator-submitted movements.
	SourceManual Source = "manual"
	// SourceReconciliation marks corrective entries emitted by a count.
	SourceReconciliation Source = "reconciliation"
)

// Entry is one immutable stock movement.
type Entry struct {
	ID           int64      `json:"id"`
	ItemID       int64      `json:"itemId"`
	Direction    Direction  `json:"direction"`
	QuantityBase float64    `json:"quantityBase"`
	QuantityPack float64    `json:"quantityPack"`
	UnitOfRecord units.Unit `json:"unitOfRecord"`
	CreatedAt    time.Time  `json:"createdAt"`
	Source       Source     `json:"source"`
	Actor        string     `json:"actor"`
	Note         string     `json:"note,omitempty"`
}

// Signed returns the entry's contribution to each track's running sum.
func (e Entry) Signed() (base, pack float64) {
	if e.Direction == DirectionOut {
		return -e.QuantityBase, -e.QuantityPack
	}
	return e.QuantityBase, e.QuantityPack
}

// StockProjection is the derived stock total for one item, never stored.
type StockProjection struct {
	ItemID    int64   `json:"itemId"`
	StockBase float64 `json:"stockBase"`
	StockPack float64 `json:"stockPack"`
}

// AppendInput describes a movement to record. CreatedAt is optional; when set
// the entry is ordered into history at that moment (reconciliation backdating).
type AppendInput struct {
	ItemID    int64
	Direction Direction
	Quantity  float64
	Unit      units.Unit
	Source    Source
	Actor     string
	Note      string
	CreatedAt time.Time
}

// EditInput describes a justification-gated correction of a manual movement.
type EditInput struct {
	Direction     Direction
	Quantity      float64
	Unit          units.Unit
	Justification string
	Actor         string
}

var (
	// ErrInvalidQuantity indicates a non-positive or non-finite quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be a positive finite number")
	// ErrInvalidDirection indicates an unknown movement direction.
	ErrInvalidDirection = errors.New("ledger: direction must be in or out")
	// ErrItemNotFound indicates the referenced item does not exist.
	ErrItemNotFound = errors.New("ledger: item not found")
	// ErrEntryNotFound indicates the referenced entry does not exist.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrJustificationRequired blocks edits or deletes of history without one.
	ErrJustificationRequired = errors.New("ledger: justification required to alter history")
	// ErrEntryImmutable blocks any alteration of reconciliation-sourced entries.
	ErrEntryImmutable = errors.New("ledger: reconciliation entries are immutable")
)
