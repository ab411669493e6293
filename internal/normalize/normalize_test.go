package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_TopLevelLists(t *testing.T) {
	raw := map[string]any{
		"raw_content": "menu text",
		"products": []any{
			map[string]any{"name": "Phở Bò", "price": 65000.0},
		},
		"services": []any{
			map[string]any{"name": "Giao hàng"},
			map[string]any{"name": "Đặt bàn"},
		},
	}

	res := Normalize(raw)

	assert.Equal(t, "menu text", res.RawContent)
	require.Len(t, res.StructuredData.Products, 1)
	require.Len(t, res.StructuredData.Services, 2)
	assert.Equal(t, "Phở Bò", res.StructuredData.Products[0]["name"])
	assert.Equal(t, 1, res.Summary.TotalProducts)
	assert.Equal(t, 2, res.Summary.TotalServices)
	assert.Equal(t, 3, res.Summary.TotalItems)
}

func TestNormalize_NestedStructuredData(t *testing.T) {
	raw := map[string]any{
		"structured_data": map[string]any{
			"products": []any{
				map[string]any{"name": "A"},
				map[string]any{"name": "B"},
			},
			"services": []any{},
		},
	}

	res := Normalize(raw)

	assert.Len(t, res.StructuredData.Products, 2)
	assert.Empty(t, res.StructuredData.Services)
	assert.Equal(t, 2, res.Summary.TotalItems)
}

func TestNormalize_LegacyKeyNames(t *testing.T) {
	raw := map[string]any{
		"raw_text":     "legacy content",
		"product_list": []any{map[string]any{"name": "P"}},
		"service_list": []any{map[string]any{"name": "S"}},
	}

	res := Normalize(raw)

	assert.Equal(t, "legacy content", res.RawContent)
	assert.Len(t, res.StructuredData.Products, 1)
	assert.Len(t, res.StructuredData.Services, 1)
}

func TestNormalize_TopLevelWinsOverNested(t *testing.T) {
	raw := map[string]any{
		"products": []any{map[string]any{"name": "top"}},
		"structured_data": map[string]any{
			"products": []any{
				map[string]any{"name": "nested-1"},
				map[string]any{"name": "nested-2"},
			},
		},
	}

	res := Normalize(raw)

	require.Len(t, res.StructuredData.Products, 1)
	assert.Equal(t, "top", res.StructuredData.Products[0]["name"])
}

func TestNormalize_EmptyAndNilInput(t *testing.T) {
	for _, raw := range []map[string]any{nil, {}} {
		res := Normalize(raw)

		assert.NotNil(t, res.StructuredData.Products)
		assert.NotNil(t, res.StructuredData.Services)
		assert.Empty(t, res.StructuredData.Products)
		assert.Empty(t, res.StructuredData.Services)
		assert.Equal(t, 0, res.Summary.TotalItems)
	}
}

func TestNormalize_DropsNonMapEntries(t *testing.T) {
	raw := map[string]any{
		"products": []any{
			map[string]any{"name": "kept"},
			"not an item",
			42,
		},
	}

	res := Normalize(raw)

	require.Len(t, res.StructuredData.Products, 1)
	assert.Equal(t, "kept", res.StructuredData.Products[0]["name"])
}

func TestNormalize_IgnoresProviderSummary(t *testing.T) {
	raw := map[string]any{
		"products": []any{map[string]any{"name": "only"}},
		"extraction_summary": map[string]any{
			"total_products": 99,
			"total_items":    99,
		},
	}

	res := Normalize(raw)

	assert.Equal(t, 1, res.Summary.TotalProducts)
	assert.Equal(t, 1, res.Summary.TotalItems)
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"content":      "some text",
		"product_list": []any{map[string]any{"name": "P", "price": 10.0}},
		"services":     []any{map[string]any{"name": "S"}},
	}

	once := Normalize(raw)
	twice := Normalize(AsMap(once))

	assert.Equal(t, once, twice)
}
