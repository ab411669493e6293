// Package normalize coerces heterogeneous AI-extraction output into the one
// canonical shape the rest of the pipeline consumes.
//
// Extraction providers have shipped results with products/services at top
// level, nested under "structured_data", and under legacy key names, depending
// on provider revision. This package is the single normalization boundary:
// nothing downstream branches on raw shapes.
package normalize

import (
	"github.com/lekompozer/wordai-aiservice-sub007/internal/task"
)

// legacy key names seen in older provider revisions.
var (
	productKeys = []string{"products", "product_list", "items"}
	serviceKeys = []string{"services", "service_list"}
	contentKeys = []string{"raw_content", "raw_text", "content"}
)

// Normalize resolves a raw extraction result into the canonical
// {raw_content, structured_data, extraction_summary} shape.
//
// Resolution order per list: top-level keys first, then the nested
// "structured_data" object, then empty. Summary counts are recomputed from the
// resolved lists; any summary the provider supplied is ignored so the counts
// are always consistent with the payload downstream stages process.
//
// Normalize is pure and idempotent: normalizing its own output (via AsMap) is
// a no-op.
func Normalize(raw map[string]any) task.ExtractionResult {
	var res task.ExtractionResult

	if raw == nil {
		res.StructuredData.Products = []map[string]any{}
		res.StructuredData.Services = []map[string]any{}
		return res
	}

	var nested map[string]any
	if v, ok := raw["structured_data"].(map[string]any); ok {
		nested = v
	}

	res.RawContent = firstString(raw, contentKeys)
	res.StructuredData.Products = resolveList(raw, nested, productKeys)
	res.StructuredData.Services = resolveList(raw, nested, serviceKeys)

	res.Summary = task.Summary{
		TotalProducts: len(res.StructuredData.Products),
		TotalServices: len(res.StructuredData.Services),
		TotalItems:    len(res.StructuredData.Products) + len(res.StructuredData.Services),
	}

	return res
}

// AsMap converts a canonical result back to the generic map form, so that a
// result can be round-tripped through Normalize or serialized for callbacks.
func AsMap(res task.ExtractionResult) map[string]any {
	products := make([]any, len(res.StructuredData.Products))
	for i, p := range res.StructuredData.Products {
		products[i] = p
	}
	services := make([]any, len(res.StructuredData.Services))
	for i, s := range res.StructuredData.Services {
		services[i] = s
	}

	return map[string]any{
		"raw_content": res.RawContent,
		"structured_data": map[string]any{
			"products": products,
			"services": services,
		},
		"extraction_summary": map[string]any{
			"total_products": res.Summary.TotalProducts,
			"total_services": res.Summary.TotalServices,
			"total_items":    res.Summary.TotalItems,
		},
	}
}

func resolveList(raw, nested map[string]any, keys []string) []map[string]any {
	for _, key := range keys {
		if items, ok := itemList(raw[key]); ok {
			return items
		}
	}
	if nested != nil {
		for _, key := range keys {
			if items, ok := itemList(nested[key]); ok {
				return items
			}
		}
	}
	return []map[string]any{}
}

// itemList coerces a value into a list of item maps. Non-map entries are
// dropped rather than failing the whole list.
func itemList(v any) ([]map[string]any, bool) {
	switch list := v.(type) {
	case []map[string]any:
		return list, true
	case []any:
		items := make([]map[string]any, 0, len(list))
		for _, entry := range list {
			if m, ok := entry.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items, true
	default:
		return nil, false
	}
}

func firstString(raw map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
