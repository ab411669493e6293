package catalog

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Price field names, checked in priority order. Tiers before ranges: when an
// item carries both, the tiered value wins.
var (
	tieredPriceKeys = []string{"price_1", "price_2", "price_3"}
	rangePriceKeys  = []string{"price_min", "price_max"}
	legacyPriceKeys = []string{"cost", "amount", "unit_price"}
	textPriceKeys   = []string{"price_text", "price_display"}

	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ResolvePrice normalizes the several accepted price representations to one
// numeric value. First successful non-zero match wins, in order: direct price,
// tiered prices, min/max range, legacy field names, numeric substring of a
// display string. Returns 0 when nothing matches; the caller logs that as a
// data-quality signal.
func ResolvePrice(item map[string]any) float64 {
	if p, ok := toFloat(item["price"]); ok && p != 0 {
		return p
	}
	for _, key := range tieredPriceKeys {
		if p, ok := toFloat(item[key]); ok && p != 0 {
			return p
		}
	}
	for _, key := range rangePriceKeys {
		if p, ok := toFloat(item[key]); ok && p != 0 {
			return p
		}
	}
	for _, key := range legacyPriceKeys {
		if p, ok := toFloat(item[key]); ok && p != 0 {
			return p
		}
	}
	for _, key := range textPriceKeys {
		if s, ok := item[key].(string); ok {
			if p := extractNumber(s); p != 0 {
				return p
			}
		}
	}
	return 0
}

// ResolveQuantity passes a present quantity through and defaults a missing one
// to QuantityNotTracked. Zero is preserved: it means out of stock, not
// "unknown".
func ResolveQuantity(item map[string]any) int64 {
	if v, exists := item["quantity"]; exists {
		if q, ok := toFloat(v); ok {
			return int64(q)
		}
	}
	return QuantityNotTracked
}

// toFloat coerces the numeric shapes JSON decoding and providers produce.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// extractNumber pulls the first numeric substring out of a display string
// like "65.000 VND" or "from $12.50". Thousands separators are kept simple:
// a comma followed by exactly three digits is treated as a separator.
func extractNumber(s string) float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0
	}

	if idx := strings.IndexAny(match, ".,"); idx != -1 && len(match)-idx-1 == 3 {
		// "65.000" / "65,000" style separator
		match = match[:idx] + match[idx+1:]
	} else {
		match = strings.ReplaceAll(match, ",", ".")
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return f
}
