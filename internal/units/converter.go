// Package units converts item quantities between the two tracked unit systems:
// base content units (grams, millilitres, pieces) and purchase pack units
// (boxes, cases). The two are related by a fixed per-item ratio of base units
// per pack.
package units

import (
	"errors"
	"math"
)

// Unit identifies which quantity track a value is expressed in.
type Unit string

const (
	// UnitBase is the item's base content unit.
	UnitBase Unit = "base"
	// UnitPack is the item's purchase pack unit.
	UnitPack Unit = "pack"
)

// Valid reports whether u is a known unit track.
func (u Unit) Valid() bool {
	return u == UnitBase || u == UnitPack
}

var (
	// ErrInvalidRatio indicates a non-positive base-per-pack ratio. Upstream item
	// validation forbids this; defended here so a bad row can never produce
	// Inf/NaN in stored quantities.
	ErrInvalidRatio = errors.New("units: base content ratio must be positive")
	// ErrNotFinite indicates a NaN or infinite quantity.
	ErrNotFinite = errors.New("units: quantity must be finite")
	// ErrUnknownUnit indicates an unrecognised unit track.
	ErrUnknownUnit = errors.New("units: unknown unit")
)

// ToBase converts quantity to base content units given the item's ratio.
func ToBase(quantity float64, unit Unit, ratio float64) (float64, error) {
	if !finite(quantity) {
		return 0, ErrNotFinite
	}
	switch unit {
	case UnitBase:
		return quantity, nil
	case UnitPack:
		if ratio <= 0 || !finite(ratio) {
			return 0, ErrInvalidRatio
		}
		return quantity * ratio, nil
	default:
		return 0, ErrUnknownUnit
	}
}

// ToPack converts quantity to purchase pack units given the item's ratio.
func ToPack(quantity float64, unit Unit, ratio float64) (float64, error) {
	if !finite(quantity) {
		return 0, ErrNotFinite
	}
	switch unit {
	case UnitPack:
		return quantity, nil
	case UnitBase:
		if ratio <= 0 || !finite(ratio) {
			return 0, ErrInvalidRatio
		}
		return quantity / ratio, nil
	default:
		return 0, ErrUnknownUnit
	}
}

// Split resolves a quantity given in one track into both tracks.
func Split(quantity float64, unit Unit, ratio float64) (base, pack float64, err error) {
	base, err = ToBase(quantity, unit, ratio)
	if err != nil {
		return 0, 0, err
	}
	pack, err = ToPack(quantity, unit, ratio)
	if err != nil {
		return 0, 0, err
	}
	return base, pack, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
