package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/units"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, audit: auditRepo}
}

const entryColumns = `id, item_id, direction, quantity_base, quantity_pack, unit_of_record, created_at, source, actor, note`

// InsertWithAudit appends one entry and its audit record in a single transaction.
func (r *Repository) InsertWithAudit(ctx context.Context, e Entry, a audit.Entry) (Entry, error) {
	if r == nil {
		return Entry{}, errors.New("ledger: repository not initialised")
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var err error
		e, err = InsertTx(ctx, tx, e)
		if err != nil {
			return err
		}
		a.EntityID = formatID(e.ID)
		return r.audit.WithTx(tx).Insert(ctx, a)
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// InsertTx appends one entry inside the caller's transaction. Used by the
// reconciliation batch so corrections and report commit atomically.
func InsertTx(ctx context.Context, tx pgx.Tx, e Entry) (Entry, error) {
	err := tx.QueryRow(ctx, `INSERT INTO ledger_entries (item_id, direction, quantity_base, quantity_pack, unit_of_record, created_at, source, actor, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		e.ItemID, string(e.Direction), e.QuantityBase, e.QuantityPack, string(e.UnitOfRecord), e.CreatedAt, string(e.Source), e.Actor, e.Note).Scan(&e.ID)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Get returns one entry by id.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	if r == nil {
		return Entry{}, errors.New("ledger: repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id=$1`, id)
	return scanEntry(row)
}

// UpdateWithAudit rewrites a manual entry and records the audit trail atomically.
// The caller has already captured the before snapshot in a.
func (r *Repository) UpdateWithAudit(ctx context.Context, e Entry, a audit.Entry) error {
	if r == nil {
		return errors.New("ledger: repository not initialised")
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.audit.WithTx(tx).Insert(ctx, a); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE ledger_entries
SET direction=$2, quantity_base=$3, quantity_pack=$4, unit_of_record=$5, actor=$6
WHERE id=$1 AND source='manual'`,
			e.ID, string(e.Direction), e.QuantityBase, e.QuantityPack, string(e.UnitOfRecord), e.Actor)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

// DeleteWithAudit removes a manual entry, recording the prior state first.
func (r *Repository) DeleteWithAudit(ctx context.Context, id int64, a audit.Entry) error {
	if r == nil {
		return errors.New("ledger: repository not initialised")
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := r.audit.WithTx(tx).Insert(ctx, a); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE id=$1 AND source='manual'`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

// ProjectStock folds one item's entries into signed sums per track. The fold is
// a single aggregate query, so it always reads one consistent snapshot.
func (r *Repository) ProjectStock(ctx context.Context, itemID int64, asOf *time.Time) (StockProjection, error) {
	if r == nil {
		return StockProjection{}, errors.New("ledger: repository not initialised")
	}
	proj := StockProjection{ItemID: itemID}
	err := r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(CASE WHEN direction='in' THEN quantity_base ELSE -quantity_base END), 0),
COALESCE(SUM(CASE WHEN direction='in' THEN quantity_pack ELSE -quantity_pack END), 0)
FROM ledger_entries
WHERE item_id=$1 AND ($2::timestamptz IS NULL OR created_at < $2)`,
		itemID, nullTime(asOf)).Scan(&proj.StockBase, &proj.StockPack)
	if err != nil {
		return StockProjection{}, err
	}
	return proj, nil
}

// ProjectStockAll folds every item's entries grouped by item in one pass.
// Items with no movements are included with zero stock.
func (r *Repository) ProjectStockAll(ctx context.Context, asOf *time.Time) ([]StockProjection, error) {
	if r == nil {
		return nil, errors.New("ledger: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT i.id,
COALESCE(SUM(CASE WHEN e.direction='in' THEN e.quantity_base WHEN e.direction='out' THEN -e.quantity_base END), 0),
COALESCE(SUM(CASE WHEN e.direction='in' THEN e.quantity_pack WHEN e.direction='out' THEN -e.quantity_pack END), 0)
FROM items i
LEFT JOIN ledger_entries e ON e.item_id = i.id AND ($1::timestamptz IS NULL OR e.created_at < $1)
GROUP BY i.id
ORDER BY i.id`, nullTime(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	projections := []StockProjection{}
	for rows.Next() {
		var p StockProjection
		if err := rows.Scan(&p.ItemID, &p.StockBase, &p.StockPack); err != nil {
			return nil, err
		}
		projections = append(projections, p)
	}
	return projections, rows.Err()
}

// List returns an item's movements newest first with a total count.
func (r *Repository) List(ctx context.Context, itemID int64, limit, offset int) ([]Entry, int, error) {
	if r == nil {
		return nil, 0, errors.New("ledger: repository not initialised")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE item_id=$1`, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE item_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, itemID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var direction, unit, source string
	err := row.Scan(&e.ID, &e.ItemID, &direction, &e.QuantityBase, &e.QuantityPack, &unit, &e.CreatedAt, &source, &e.Actor, &e.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.Direction = Direction(direction)
	e.UnitOfRecord = units.Unit(unit)
	e.Source = Source(source)
	return e, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
