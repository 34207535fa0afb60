package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so audit rows can be
// written inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists audit entries in PostgreSQL.
type Repository struct {
	db DBTX
}

// NewRepository constructs Repository over a pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// Insert appends one audit entry.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if r == nil {
		return errors.New("audit: repository not initialised")
	}
	if e.Action == "" || e.EntityType == "" || e.EntityID == "" {
		return ErrIncomplete
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_logs (action, entity_type, entity_id, entity_name, details, justification, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.Action, e.EntityType, e.EntityID, e.EntityName, details, nullStr(e.Justification), e.Actor, at)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Query lists entries matching the filters, newest first, with a total count.
func (r *Repository) Query(ctx context.Context, f QueryFilters, limit, offset int) ([]Entry, int, error) {
	if r == nil {
		return nil, 0, errors.New("audit: repository not initialised")
	}
	const where = `($1='' OR actor=$1) AND ($2='' OR entity_type=$2) AND ($3='' OR action=$3)
AND ($4::timestamptz IS NULL OR created_at >= $4) AND ($5::timestamptz IS NULL OR created_at < $5)`
	args := []any{f.Actor, f.EntityType, f.Action, nullTime(f.From), nullTime(f.To)}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, action, entity_type, entity_id, entity_name, details, COALESCE(justification,''), actor, created_at
FROM audit_logs WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT $6 OFFSET $7`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.EntityName, &details, &e.Justification, &e.Actor, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("audit: unmarshal details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
