package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadConversion_RoundTrip(t *testing.T) {
	payload := map[string]any{
		"company_id":  "comp-1",
		"item_type":   "product",
		"chunk_index": int64(3),
		"price":       65000.0,
		"active":      true,
		"tags":        []any{"noodle", "beef"},
	}

	back := fromQdrantPayload(toQdrantPayload(payload))

	assert.Equal(t, "comp-1", back["company_id"])
	assert.Equal(t, int64(3), back["chunk_index"])
	assert.Equal(t, 65000.0, back["price"])
	assert.Equal(t, true, back["active"])
	assert.Equal(t, []any{"noodle", "beef"}, back["tags"])
}

func TestToQdrantPayload_DropsUnsupported(t *testing.T) {
	payload := map[string]any{
		"ok":     "value",
		"nested": map[string]any{"not": "supported"},
		"nilval": nil,
	}

	converted := toQdrantPayload(payload)

	assert.Contains(t, converted, "ok")
	assert.NotContains(t, converted, "nested")
	assert.NotContains(t, converted, "nilval")
}

func TestToQdrantPayload_StringSlice(t *testing.T) {
	converted := toQdrantPayload(map[string]any{"tags": []string{"a", "b"}})

	list := converted["tags"].GetListValue()
	require.NotNil(t, list)
	require.Len(t, list.Values, 2)
	assert.Equal(t, "a", list.Values[0].GetStringValue())
}

func TestToQdrantFilter(t *testing.T) {
	f := toQdrantFilter(Filter{"company_id": "comp-1"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)

	field := f.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, "company_id", field.Key)
	assert.Equal(t, "comp-1", field.Match.GetKeyword())

	assert.Nil(t, toQdrantFilter(nil))
	assert.Nil(t, toQdrantFilter(Filter{}))
	assert.Nil(t, toQdrantFilter(Filter{"n": 42}), "non-string filter values are ignored")
}

func TestToQdrantFilter_Keywords(t *testing.T) {
	f := toQdrantFilter(Filter{"item_type": []string{"product", "service"}})
	require.NotNil(t, f)

	match := f.Must[0].GetField().Match.GetKeywords()
	require.NotNil(t, match)
	assert.Equal(t, []string{"product", "service"}, match.Strings)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("multi_company_data"))
	assert.NoError(t, ValidateCollectionName("c123"))

	assert.Error(t, ValidateCollectionName(""))
	assert.Error(t, ValidateCollectionName("Has-Caps"))
	assert.Error(t, ValidateCollectionName("spaces not allowed"))
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(assert.AnError))
}
