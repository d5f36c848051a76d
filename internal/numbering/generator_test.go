package numbering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatPadsSequence(t *testing.T) {
	require.Equal(t, "PINV-2026-00001", Format("PINV", 2026, 1))
	require.Equal(t, "SRN-2026-00042", Format("SRN", 2026, 42))
	require.Equal(t, "INV-2026-123456", Format("INV", 2026, 123456))
}

func TestEveryDocTypeHasAPrefix(t *testing.T) {
	for _, dt := range []DocType{DocPurchase, DocPurchaseReturn, DocSale, DocSaleReturn} {
		prefix, ok := prefixes[dt]
		require.True(t, ok, "missing prefix for %s", dt)
		require.NotEmpty(t, prefix)
	}
}
