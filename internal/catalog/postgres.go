package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the catalog store:
//
//	CREATE TABLE IF NOT EXISTS catalog_items (
//	    item_id    TEXT PRIMARY KEY,
//	    company_id TEXT NOT NULL,
//	    item_type  TEXT NOT NULL,
//	    name       TEXT NOT NULL DEFAULT '',
//	    price      DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    quantity   BIGINT NOT NULL DEFAULT -1,
//	    file_id    TEXT NOT NULL DEFAULT '',
//	    file_name  TEXT NOT NULL DEFAULT '',
//	    status     TEXT NOT NULL DEFAULT 'active',
//	    raw        JSONB NOT NULL DEFAULT '{}',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX IF NOT EXISTS catalog_items_company_idx ON catalog_items (company_id);
//	CREATE INDEX IF NOT EXISTS catalog_items_file_idx ON catalog_items (company_id, file_id);

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging catalog store: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InsertOne persists a new catalog record with its raw payload as JSONB.
func (s *PostgresStore) InsertOne(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("marshaling raw item %s: %w", rec.ItemID, err)
	}

	query := `INSERT INTO catalog_items
		(item_id, company_id, item_type, name, price, quantity, file_id, file_name, status, raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, query,
		rec.ItemID, rec.CompanyID, rec.ItemType, rec.Name, rec.Price, rec.Quantity,
		rec.FileID, rec.FileName, rec.Status, raw, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting catalog record %s: %w", rec.ItemID, err)
	}
	return nil
}

// updatableColumns whitelists fields UpdateOne may touch.
var updatableColumns = map[string]string{
	"name":     "name",
	"price":    "price",
	"quantity": "quantity",
	"status":   "status",
}

// UpdateOne applies in-place updates (quantity/price changes, soft removal)
// to one record of one company.
func (s *PostgresStore) UpdateOne(ctx context.Context, companyID, itemID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for key, value := range fields {
		col, ok := updatableColumns[key]
		if !ok {
			return fmt.Errorf("catalog field %q is not updatable", key)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, companyID)
	companyArg := len(args)
	args = append(args, itemID)
	itemArg := len(args)

	query := fmt.Sprintf("UPDATE catalog_items SET %s WHERE company_id = $%d AND item_id = $%d",
		strings.Join(sets, ", "), companyArg, itemArg)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating catalog record %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog record %s not found for company %s", itemID, companyID)
	}
	return nil
}

// DeleteMany removes every record a source file produced for a company.
func (s *PostgresStore) DeleteMany(ctx context.Context, companyID, fileID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM catalog_items WHERE company_id = $1 AND file_id = $2",
		companyID, fileID)
	if err != nil {
		return 0, fmt.Errorf("deleting catalog records for file %s: %w", fileID, err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
