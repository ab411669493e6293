package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePrice_DirectWins(t *testing.T) {
	item := map[string]any{
		"price":   50000.0,
		"price_1": 45000.0,
		"cost":    40000.0,
	}
	assert.Equal(t, 50000.0, ResolvePrice(item))
}

func TestResolvePrice_TieredBeforeRange(t *testing.T) {
	item := map[string]any{
		"price_2":   30000.0,
		"price_min": 20000.0,
		"price_max": 40000.0,
	}
	assert.Equal(t, 30000.0, ResolvePrice(item))
}

func TestResolvePrice_TierOrder(t *testing.T) {
	item := map[string]any{
		"price_1": 0.0,
		"price_2": 15000.0,
		"price_3": 25000.0,
	}
	// Zero tiers are skipped; first non-zero tier wins.
	assert.Equal(t, 15000.0, ResolvePrice(item))
}

func TestResolvePrice_RangeAndLegacy(t *testing.T) {
	assert.Equal(t, 20000.0, ResolvePrice(map[string]any{"price_min": 20000.0}))
	assert.Equal(t, 40000.0, ResolvePrice(map[string]any{"price_max": 40000.0}))
	assert.Equal(t, 12.5, ResolvePrice(map[string]any{"cost": 12.5}))
	assert.Equal(t, 99.0, ResolvePrice(map[string]any{"unit_price": 99}))
}

func TestResolvePrice_NumericCoercion(t *testing.T) {
	assert.Equal(t, 10.0, ResolvePrice(map[string]any{"price": 10}))
	assert.Equal(t, 10.0, ResolvePrice(map[string]any{"price": int64(10)}))
	assert.Equal(t, 10.5, ResolvePrice(map[string]any{"price": "10.5"}))
	assert.Equal(t, 10.0, ResolvePrice(map[string]any{"price": json.Number("10")}))
}

func TestResolvePrice_DisplayString(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"65.000 VND", 65000},
		{"65,000 VND", 65000},
		{"from $12.50", 12.5},
		{"liên hệ", 0},
	}
	for _, tt := range tests {
		got := ResolvePrice(map[string]any{"price_text": tt.text})
		assert.Equal(t, tt.want, got, "price_text=%q", tt.text)
	}
}

func TestResolvePrice_NothingResolvable(t *testing.T) {
	assert.Equal(t, 0.0, ResolvePrice(map[string]any{"name": "item"}))
	assert.Equal(t, 0.0, ResolvePrice(map[string]any{"price": "call us"}))
	assert.Equal(t, 0.0, ResolvePrice(nil))
}

func TestResolveQuantity(t *testing.T) {
	assert.Equal(t, int64(7), ResolveQuantity(map[string]any{"quantity": 7.0}))
	assert.Equal(t, int64(3), ResolveQuantity(map[string]any{"quantity": "3"}))

	// Zero means out of stock and is preserved.
	assert.Equal(t, int64(0), ResolveQuantity(map[string]any{"quantity": 0.0}))

	// Absent means not tracked.
	assert.Equal(t, QuantityNotTracked, ResolveQuantity(map[string]any{"name": "x"}))
}
