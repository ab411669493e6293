// Package task defines the queue payload types for the extraction pipeline.
//
// An ExtractionTask identifies one uploaded document to process. A StorageTask
// is the handoff artifact between the extraction stage and the storage stage;
// it carries the normalized extraction result plus the identifier the external
// backend already knows (OriginalExtractionTaskID), which every callback must
// reference.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects the processing path for an extraction task.
type Mode string

const (
	// ModeStandard runs extraction and delivers the legacy callback directly,
	// storing one vector point per content chunk instead of per item.
	ModeStandard Mode = "standard"

	// ModeTwoStage hands the normalized result to the storage queue for
	// per-item embedding, catalog registration and metadata-rich points.
	ModeTwoStage Mode = "two_stage_individual_storage"
)

// ExtractionTask identifies one document to extract. It is created by the API
// layer, consumed exactly once by an extraction worker, and never mutated.
type ExtractionTask struct {
	TaskID             string         `json:"task_id"`
	CompanyID          string         `json:"company_id"`
	R2URL              string         `json:"r2_url"`
	FileName           string         `json:"file_name"`
	FileType           string         `json:"file_type"`
	FileSize           int64          `json:"file_size"`
	FileID             string         `json:"file_id,omitempty"`
	Industry           string         `json:"industry,omitempty"`
	Language           string         `json:"language,omitempty"`
	DataType           string         `json:"data_type,omitempty"`
	TargetCategories   []string       `json:"target_categories"`
	CallbackURL        string         `json:"callback_url,omitempty"`
	CompanyInfo        map[string]any `json:"company_info,omitempty"`
	ProcessingMetadata map[string]any `json:"processing_metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Mode resolves the processing-mode variant from the free-form metadata bag
// submitted by the backend. The bag is probed exactly once, here; workers
// branch on the returned variant only.
func (t *ExtractionTask) Mode() Mode {
	if truthy(t.ProcessingMetadata["hybrid_extraction"]) || truthy(t.ProcessingMetadata["individual_storage"]) {
		return ModeTwoStage
	}
	return ModeStandard
}

// StructuredData is the canonical container for extracted items. Items stay as
// generic maps: the extraction collaborator's per-item fields vary by provider
// revision and the registrar persists them raw for audit.
type StructuredData struct {
	Products []map[string]any `json:"products"`
	Services []map[string]any `json:"services"`
}

// Summary holds counts recomputed from the resolved item lists.
type Summary struct {
	TotalProducts int `json:"total_products"`
	TotalServices int `json:"total_services"`
	TotalItems    int `json:"total_items"`
}

// ExtractionResult is the canonical shape every downstream stage consumes.
// Only the normalizer produces it; nothing else branches on raw shapes.
type ExtractionResult struct {
	RawContent     string         `json:"raw_content"`
	StructuredData StructuredData `json:"structured_data"`
	Summary        Summary        `json:"extraction_summary"`
}

// FileMetadata carries the original file attributes through the storage stage.
type FileMetadata struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	Industry string `json:"industry,omitempty"`
	Language string `json:"language,omitempty"`
}

// StorageTask is the handoff artifact between the two stages. Created by the
// extraction worker, consumed exactly once by a storage worker, ephemeral.
type StorageTask struct {
	TaskID                   string         `json:"task_id"`
	CompanyID                string         `json:"company_id"`
	StructuredData           StructuredData `json:"structured_data"`
	Metadata                 FileMetadata   `json:"metadata"`
	CallbackURL              string         `json:"callback_url,omitempty"`
	OriginalExtractionTaskID string         `json:"original_extraction_task_id"`
	CreatedAt                time.Time      `json:"created_at"`
}

// NewTaskID returns an opaque unique task identifier.
func NewTaskID() string {
	return uuid.New().String()
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "1" || x == "yes"
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return false
	}
}
