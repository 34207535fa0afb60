package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldKey(t *testing.T) {
	require.Equal(t, "creme fraiche", FoldKey("  Crème Fraîche "))
	require.Equal(t, "jalapeno", FoldKey("Jalapeño"))
	require.Equal(t, "olive oil", FoldKey("olive oil"))
	require.Equal(t, "", FoldKey("   "))
}

func TestFoldKeyStable(t *testing.T) {
	// Folding an already-folded key is a no-op.
	once := FoldKey("Gruyère AOP")
	require.Equal(t, once, FoldKey(once))
}
