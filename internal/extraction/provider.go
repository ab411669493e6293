// Package extraction defines the AI extraction collaborator boundary and its
// HTTP client.
//
// The collaborator is a black box that receives a document reference plus
// metadata and returns structured JSON. Its output shape varies by provider
// revision; callers hand the raw result to the normalizer, never interpret it
// here.
package extraction

import (
	"context"
	"errors"
)

// ErrExtractionFailed indicates the collaborator could not produce a result.
// Task-fatal for the extraction worker: reported via failure webhook, not
// retried at the worker layer.
var ErrExtractionFailed = errors.New("extraction failed")

// Metadata is the file metadata bundle sent with every extraction request.
type Metadata struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	Industry string `json:"industry,omitempty"`
	Language string `json:"language,omitempty"`
}

// Provider extracts structured records from one document.
type Provider interface {
	Extract(ctx context.Context, documentURL string, meta Metadata, companyInfo map[string]any, categories []string) (map[string]any, error)
}
