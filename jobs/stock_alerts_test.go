package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/inventory"
)

// A product can classify critical through min_stock_level alone when that
// threshold sits above reorder_level, so the scan filter has to use the
// larger of the two.
func TestStockAlertScanFilterCoversBothThresholds(t *testing.T) {
	require.Contains(t, stockAlertScanQuery, "GREATEST(reorder_level, min_stock_level)")

	// quantity 8 is above reorder (5) but at min (10): still an alert.
	require.Equal(t, inventory.StockStatusCritical, inventory.ClassifyStock(8, 10, 5))
	require.Equal(t, inventory.StockStatusAdequate, inventory.ClassifyStock(11, 10, 5))
}
