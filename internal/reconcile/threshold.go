package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/larderhq/larder/internal/catalog"
)

// ThresholdAdjuster writes per-item minimum-stock thresholds supplied
// alongside a count. The item record is owned by the catalog; this is the one
// field the stock core writes there.
type ThresholdAdjuster struct{}

// SetMinStockTx updates the threshold inside the caller's transaction and
// returns the prior value for audit capture.
func (ThresholdAdjuster) SetMinStockTx(ctx context.Context, tx pgx.Tx, itemID int64, value float64) (float64, error) {
	if value < 0 {
		return 0, catalog.ErrInvalidMinStock
	}
	var prior float64
	err := tx.QueryRow(ctx, `UPDATE items SET min_stock=$2, updated_at=NOW()
WHERE id=$1
RETURNING (SELECT min_stock FROM items WHERE id=$1)`, itemID, value).Scan(&prior)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, catalog.ErrItemNotFound
	}
	if err != nil {
		return 0, err
	}
	return prior, nil
}
