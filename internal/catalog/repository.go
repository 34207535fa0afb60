package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads catalog items from PostgreSQL and writes min-stock thresholds.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, item_type, name, base_content_value, base_content_unit, purchase_pack_unit, min_stock`

// GetByID resolves one item by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Item, error) {
	if r == nil {
		return Item{}, errors.New("catalog: repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id)
	return scanItem(row)
}

// GetByKey resolves one item by its (type, name) pair using folded matching.
func (r *Repository) GetByKey(ctx context.Context, itemType, name string) (Item, error) {
	if r == nil {
		return Item{}, errors.New("catalog: repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE type_key=$1 AND name_key=$2`,
		FoldKey(itemType), FoldKey(name))
	return scanItem(row)
}

// ListAll returns every catalog item, ordered by type then name.
func (r *Repository) ListAll(ctx context.Context) ([]Item, error) {
	if r == nil {
		return nil, errors.New("catalog: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY item_type, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateMinStock writes the new threshold and returns the prior value.
func (r *Repository) UpdateMinStock(ctx context.Context, id int64, value float64) (float64, error) {
	if r == nil {
		return 0, errors.New("catalog: repository not initialised")
	}
	if value < 0 {
		return 0, ErrInvalidMinStock
	}
	var prior float64
	err := r.pool.QueryRow(ctx, `UPDATE items SET min_stock=$2, updated_at=NOW()
WHERE id=$1
RETURNING (SELECT min_stock FROM items WHERE id=$1)`, id, value).Scan(&prior)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, err
	}
	return prior, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Type, &item.Name, &item.BaseContentValue, &item.BaseContentUnit, &item.PurchasePackUnit, &item.MinStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}
