package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestExtract_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"raw_content": "menu text",
			"products":    []any{map[string]any{"name": "Phở Bò"}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123", RateLimit: 100})
	require.NoError(t, err)

	result, err := c.Extract(context.Background(), "https://r2.example/doc.pdf",
		Metadata{FileName: "menu.pdf", Industry: "restaurant"},
		map[string]any{"name": "Quán Ngon"},
		[]string{"products"})

	require.NoError(t, err)
	assert.Equal(t, "/extract", gotPath)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "https://r2.example/doc.pdf", gotReq["document_url"])
	assert.Equal(t, "menu text", result["raw_content"])

	meta, _ := gotReq["metadata"].(map[string]any)
	require.NotNil(t, meta)
	assert.Equal(t, "menu.pdf", meta["file_name"])
}

func TestExtract_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad document", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), "url", Metadata{}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtract_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": []any{}})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	result, err := c.Extract(context.Background(), "url", Metadata{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtract_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Extract(ctx, "url", Metadata{}, nil, nil)
	assert.Error(t, err)
}
