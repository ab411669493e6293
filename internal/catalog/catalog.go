// Package catalog issues stable catalog identities for extracted items and
// persists them in the catalog document store.
//
// The registrar is the sole source of truth for identity: ids arriving from
// the extraction stage are discarded, never reused, so re-processing a
// document at a later time can never collide with ids minted earlier.
package catalog

import (
	"context"
	"time"
)

// Item types accepted by the registrar.
const (
	ItemTypeProduct = "product"
	ItemTypeService = "service"
)

// QuantityNotTracked is the sentinel for items with no quantity field.
// Distinct from 0, which means out of stock.
const QuantityNotTracked int64 = -1

// Record status values. Records are soft-removed by status, not deleted,
// except on explicit bulk cleanup by source file.
const (
	StatusActive  = "active"
	StatusRemoved = "removed"
)

// Record is the durable, queryable identity for one item. The four clean
// fields (ItemID, Name, Price, Quantity) serve low-token AI prompt contexts;
// Raw keeps the complete extraction input for audit and replay.
type Record struct {
	ItemID    string         `json:"item_id"`
	CompanyID string         `json:"company_id"`
	ItemType  string         `json:"item_type"`
	Name      string         `json:"name"`
	Price     float64        `json:"price"`
	Quantity  int64          `json:"quantity"`
	FileID    string         `json:"file_id,omitempty"`
	FileName  string         `json:"file_name,omitempty"`
	Status    string         `json:"status"`
	Raw       map[string]any `json:"raw"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the catalog document store boundary.
type Store interface {
	// InsertOne persists a new record.
	InsertOne(ctx context.Context, rec Record) error

	// UpdateOne applies field updates to one record of one company.
	UpdateOne(ctx context.Context, companyID, itemID string, fields map[string]any) error

	// DeleteMany removes all records of a company originating from one source
	// file and returns the number removed.
	DeleteMany(ctx context.Context, companyID, fileID string) (int64, error)
}
