package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBaseFromPack(t *testing.T) {
	got, err := ToBase(3, UnitPack, 12)
	require.NoError(t, err)
	require.InDelta(t, 36.0, got, 0.0001)
}

func TestToBaseIdentity(t *testing.T) {
	got, err := ToBase(7.5, UnitBase, 12)
	require.NoError(t, err)
	require.InDelta(t, 7.5, got, 0.0001)
}

func TestToPackFromBase(t *testing.T) {
	got, err := ToPack(36, UnitBase, 12)
	require.NoError(t, err)
	require.InDelta(t, 3.0, got, 0.0001)
}

func TestRoundTrip(t *testing.T) {
	ratios := []float64{1, 6, 12, 24, 0.5, 250}
	quantities := []float64{0, 1, 3.75, 8, 120.25}
	for _, r := range ratios {
		for _, q := range quantities {
			base, err := ToBase(q, UnitPack, r)
			require.NoError(t, err)
			back, err := ToPack(base, UnitBase, r)
			require.NoError(t, err)
			require.InDelta(t, q, back, 1e-9, "ratio %v qty %v", r, q)
		}
	}
}

func TestInvalidRatio(t *testing.T) {
	_, err := ToPack(10, UnitBase, 0)
	require.ErrorIs(t, err, ErrInvalidRatio)

	_, err = ToPack(10, UnitBase, -3)
	require.ErrorIs(t, err, ErrInvalidRatio)

	_, err = ToBase(10, UnitPack, 0)
	require.ErrorIs(t, err, ErrInvalidRatio)

	// Identity paths do not touch the ratio.
	_, err = ToBase(10, UnitBase, 0)
	require.NoError(t, err)
}

func TestNonFiniteQuantity(t *testing.T) {
	_, err := ToBase(math.NaN(), UnitPack, 12)
	require.ErrorIs(t, err, ErrNotFinite)

	_, err = ToPack(math.Inf(1), UnitPack, 12)
	require.ErrorIs(t, err, ErrNotFinite)
}

func TestUnknownUnit(t *testing.T) {
	_, err := ToBase(1, Unit("crate"), 12)
	require.ErrorIs(t, err, ErrUnknownUnit)
}

func TestSplit(t *testing.T) {
	base, pack, err := Split(2, UnitPack, 24)
	require.NoError(t, err)
	require.InDelta(t, 48.0, base, 0.0001)
	require.InDelta(t, 2.0, pack, 0.0001)

	base, pack, err = Split(48, UnitBase, 24)
	require.NoError(t, err)
	require.InDelta(t, 48.0, base, 0.0001)
	require.InDelta(t, 2.0, pack, 0.0001)
}
