package inventory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The products table is written by the catalog module, which names its
// columns name and reference_no. Every read here has to use the same
// names or the approval path dies with an undefined-column error.
func TestProductQueriesUseCatalogColumnNames(t *testing.T) {
	require.Contains(t, productColumns, "name")
	require.Contains(t, productColumns, "reference_no")
	require.NotContains(t, productColumns, "product_name")
	require.NotContains(t, productColumns, "product_reference_no")

	for _, col := range strings.Split(productColumns, ",") {
		col = strings.TrimSpace(col)
		require.NotEmpty(t, col)
	}

	for _, query := range []string{transactionBaseQuery, itemsQuery} {
		require.Contains(t, query, "p.name")
		require.NotContains(t, query, "p.product_name")
	}
}
