package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/ledger"
	"github.com/larderhq/larder/internal/shared"
)

const idempotencyModule = "reconciliation"

// Repository persists reconciliation reports and applies correction batches.
type Repository struct {
	pool      *pgxpool.Pool
	audit     *audit.Repository
	threshold ThresholdAdjuster
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, audit: auditRepo}
}

// Correction pairs a corrective ledger entry with its audit record. The audit
// entity id is filled in once the entry id is known inside the transaction.
type Correction struct {
	Entry ledger.Entry
	Audit audit.Entry
}

// SaveBatch commits the report, its corrective ledger entries, the threshold
// updates and every audit row in one transaction. A duplicate idempotency key
// rolls everything back and surfaces shared.ErrIdempotencyConflict, so a crash
// or retry can never leave corrections without their report.
func (r *Repository) SaveBatch(ctx context.Context, report Report, corrections []Correction, changes []MinStockChange, auditEntries []audit.Entry, idemKey string) error {
	if r == nil {
		return errors.New("reconcile: repository not initialised")
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if err := shared.InsertTx(ctx, tx, idemKey, idempotencyModule, report.ID); err != nil {
			return err
		}

		auditTx := r.audit.WithTx(tx)
		for _, c := range corrections {
			inserted, err := ledger.InsertTx(ctx, tx, c.Entry)
			if err != nil {
				return fmt.Errorf("reconcile: insert correction: %w", err)
			}
			c.Audit.EntityID = strconv.FormatInt(inserted.ID, 10)
			if err := auditTx.Insert(ctx, c.Audit); err != nil {
				return err
			}
		}

		for _, change := range changes {
			if _, err := r.threshold.SetMinStockTx(ctx, tx, change.ItemID, change.New); err != nil {
				return fmt.Errorf("reconcile: set min stock for item %d: %w", change.ItemID, err)
			}
		}

		if err := insertReport(ctx, tx, report); err != nil {
			return fmt.Errorf("reconcile: insert report: %w", err)
		}

		for _, entry := range auditEntries {
			if err := auditTx.Insert(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertReport(ctx context.Context, tx pgx.Tx, report Report) error {
	adjusted, err := json.Marshal(report.AdjustedItems)
	if err != nil {
		return err
	}
	unchanged, err := json.Marshal(report.UnchangedItems)
	if err != nil {
		return err
	}
	invalid, err := json.Marshal(report.InvalidItems)
	if err != nil {
		return err
	}
	minChanges, err := json.Marshal(report.MinStockChanges)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO reconciliation_reports
(id, reconciliation_date, upload_date, performed_by, total_items, adjusted_items, unchanged_items, invalid_items, min_stock_changes, file_name, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		report.ID, report.ReconciliationDate, report.UploadDate, report.PerformedBy, report.TotalItems,
		adjusted, unchanged, invalid, minChanges, report.FileName, report.Notes)
	return err
}

// GetReport fetches one persisted report by id.
func (r *Repository) GetReport(ctx context.Context, id string) (Report, error) {
	if r == nil {
		return Report{}, errors.New("reconcile: repository not initialised")
	}
	var report Report
	var adjusted, unchanged, invalid, minChanges []byte
	err := r.pool.QueryRow(ctx, `SELECT id, reconciliation_date, upload_date, performed_by, total_items, adjusted_items, unchanged_items, invalid_items, min_stock_changes, file_name, notes
FROM reconciliation_reports WHERE id=$1`, id).Scan(
		&report.ID, &report.ReconciliationDate, &report.UploadDate, &report.PerformedBy, &report.TotalItems,
		&adjusted, &unchanged, &invalid, &minChanges, &report.FileName, &report.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal(adjusted, &report.AdjustedItems); err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal(unchanged, &report.UnchangedItems); err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal(invalid, &report.InvalidItems); err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal(minChanges, &report.MinStockChanges); err != nil {
		return Report{}, err
	}
	return report, nil
}

// ListReports returns report headers newest first with a total count.
func (r *Repository) ListReports(ctx context.Context, limit, offset int) ([]ReportHeader, int, error) {
	if r == nil {
		return nil, 0, errors.New("reconcile: repository not initialised")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_reports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, reconciliation_date, upload_date, performed_by, file_name, total_items,
jsonb_array_length(adjusted_items), jsonb_array_length(unchanged_items), jsonb_array_length(invalid_items), jsonb_array_length(min_stock_changes)
FROM reconciliation_reports ORDER BY upload_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	headers := []ReportHeader{}
	for rows.Next() {
		var h ReportHeader
		if err := rows.Scan(&h.ID, &h.ReconciliationDate, &h.UploadDate, &h.PerformedBy, &h.FileName,
			&h.Summary.Total, &h.Summary.Adjusted, &h.Summary.Unchanged, &h.Summary.Invalid, &h.Summary.MinStockChanged); err != nil {
			return nil, 0, err
		}
		headers = append(headers, h)
	}
	return headers, total, rows.Err()
}
