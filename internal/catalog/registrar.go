package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// foreignIDKeys are identifier fields the extraction stage may attach. They
// are untrusted and always discarded before minting.
var foreignIDKeys = []string{"product_id", "service_id", "item_id", "id"}

// Registrar mints catalog identities and persists catalog records.
//
// Known limitation: every registration mints a fresh id, so resubmitting the
// same document produces duplicate records for the same logical items. A
// dedupe key (hash of company id + document URL) at this boundary would
// collapse those; not implemented.
type Registrar struct {
	store  Store
	logger *zap.Logger
}

// NewRegistrar creates a registrar backed by the given store.
func NewRegistrar(store Store, logger *zap.Logger) *Registrar {
	return &Registrar{store: store, logger: logger}
}

// Register mints a new catalog id for an extracted item, normalizes its price
// and quantity, persists the record, and returns the item enriched with the
// assigned id and normalized fields.
//
// Persistence failure does not abort the pipeline: the minted id is still
// returned on the item so vector storage can proceed, favoring availability
// of search over catalog completeness. The item is returned without the
// normalized enrichment in that case.
func (r *Registrar) Register(ctx context.Context, item map[string]any, companyID, itemType, fileID, fileName string) map[string]any {
	itemID := mintID(itemType)

	name, _ := item["name"].(string)
	price := ResolvePrice(item)
	quantity := ResolveQuantity(item)

	if price == 0 {
		// Data-quality signal, not an error: the item is still registered.
		r.logger.Info("no resolvable price for item",
			zap.String("company_id", companyID),
			zap.String("item_id", itemID),
			zap.String("name", name))
	}

	raw := cloneItem(item)
	for _, key := range foreignIDKeys {
		delete(raw, key)
	}

	now := time.Now().UTC()
	rec := Record{
		ItemID:    itemID,
		CompanyID: companyID,
		ItemType:  itemType,
		Name:      name,
		Price:     price,
		Quantity:  quantity,
		FileID:    fileID,
		FileName:  fileName,
		Status:    StatusActive,
		Raw:       raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	enriched := cloneItem(item)
	enriched[idKey(itemType)] = itemID

	if err := r.store.InsertOne(ctx, rec); err != nil {
		r.logger.Error("catalog insert failed, continuing with fallback id",
			zap.String("company_id", companyID),
			zap.String("item_id", itemID),
			zap.Error(err))
		return enriched
	}

	enriched["catalog_price"] = price
	enriched["catalog_quantity"] = quantity
	return enriched
}

// SoftRemove flags a record as removed without deleting it.
func (r *Registrar) SoftRemove(ctx context.Context, companyID, itemID string) error {
	return r.store.UpdateOne(ctx, companyID, itemID, map[string]any{"status": StatusRemoved})
}

// RemoveByFile bulk-deletes all records a source file produced. This is the
// only physical deletion path.
func (r *Registrar) RemoveByFile(ctx context.Context, companyID, fileID string) (int64, error) {
	return r.store.DeleteMany(ctx, companyID, fileID)
}

func mintID(itemType string) string {
	prefix := "prod_"
	if itemType == ItemTypeService {
		prefix = "serv_"
	}
	return prefix + uuid.New().String()
}

func idKey(itemType string) string {
	if itemType == ItemTypeService {
		return "service_id"
	}
	return "product_id"
}

func cloneItem(item map[string]any) map[string]any {
	clone := make(map[string]any, len(item)+3)
	for k, v := range item {
		clone[k] = v
	}
	return clone
}
