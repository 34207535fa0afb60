// Package catalog exposes the product catalog records the stock core reads.
// Item CRUD lives elsewhere; this package only resolves items and writes the
// minimum-stock threshold.
package catalog

import "errors"

// Item carries the catalog fields the stock core depends on. BaseContentValue
// is the fixed number of base content units per purchase pack.
type Item struct {
	ID               int64   `json:"id"`
	Type             string  `json:"type"`
	Name             string  `json:"name"`
	BaseContentValue float64 `json:"baseContentValue"`
	BaseContentUnit  string  `json:"baseContentUnit"`
	PurchasePackUnit string  `json:"purchasePackUnit"`
	MinStock         float64 `json:"minStock"`
}

// ErrItemNotFound indicates the item could not be resolved.
var ErrItemNotFound = errors.New("catalog: item not found")

// ErrInvalidMinStock indicates a negative threshold value.
var ErrInvalidMinStock = errors.New("catalog: min stock must be >= 0")
