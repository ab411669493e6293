package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/catalog"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/task"
)

func newStorageTestWorker(t *testing.T, q *queue.Queue, embedder *fakeEmbedder, catalogStore *fakeCatalogStore, vectors *fakeVectorStore) *StorageWorker {
	t.Helper()
	return NewStorageWorker(
		"storage-test",
		q,
		embedder,
		catalog.NewRegistrar(catalogStore, zap.NewNop()),
		vectors,
		"test_collection",
		testNotifier(),
		200*time.Millisecond,
		zap.NewNop(),
	)
}

func storageTask(callbackURL string, products, services []map[string]any) *task.StorageTask {
	return &task.StorageTask{
		TaskID:    task.NewTaskID(),
		CompanyID: "comp-1",
		StructuredData: task.StructuredData{
			Products: products,
			Services: services,
		},
		Metadata: task.FileMetadata{
			FileID:   "file-1",
			FileName: "menu.pdf",
		},
		CallbackURL:              callbackURL,
		OriginalExtractionTaskID: task.NewTaskID(),
		CreatedAt:                time.Now().UTC(),
	}
}

func TestStorageWorker_StoresItemsAndReportsAggregate(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	recorder := newCallbackRecorder(t)
	embedder := &fakeEmbedder{}
	catalogStore := &fakeCatalogStore{}
	vectors := &fakeVectorStore{}
	w := newStorageTestWorker(t, q, embedder, catalogStore, vectors)

	st := storageTask(recorder.url(),
		[]map[string]any{{
			"name":        "Phở Bò",
			"description": "Beef noodle soup",
			"category":    "main",
			"price":       65000.0,
			"tags":        []any{"noodle", "beef"},
		}},
		[]map[string]any{{
			"name":     "Giao hàng",
			"category": "delivery",
		}},
	)
	w.process(context.Background(), st)

	// One point per item, with the minted catalog id in the payload.
	points := vectors.stored()
	require.Len(t, points, 2)
	assert.Equal(t, "product", points[0].Payload["item_type"])
	productID, _ := points[0].Payload["product_id"].(string)
	assert.True(t, strings.HasPrefix(productID, "prod_"), "got %q", productID)
	assert.Equal(t, "comp-1", points[0].Payload["company_id"])
	assert.Equal(t, "file-1", points[0].Payload["file_id"])
	assert.Equal(t, []string{"noodle", "beef"}, points[0].Payload["tags"])

	serviceID, _ := points[1].Payload["service_id"].(string)
	assert.True(t, strings.HasPrefix(serviceID, "serv_"))

	// Embedding text is synthesized from name, description and category.
	require.Len(t, embedder.calls, 2)
	assert.Equal(t, "Phở Bò. Beef noodle soup. Category: main", embedder.calls[0])
	assert.Equal(t, "Giao hàng. Category: delivery", embedder.calls[1])

	// Catalog records persisted.
	require.Len(t, catalogStore.inserted, 2)
	assert.Equal(t, 65000.0, catalogStore.inserted[0].Price)
	assert.Equal(t, catalog.QuantityNotTracked, catalogStore.inserted[0].Quantity)

	// One aggregate callback referencing the original extraction task id.
	payloads := recorder.received()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Equal(t, st.OriginalExtractionTaskID, p["task_id"])
	assert.Equal(t, "completed", p["status"])

	meta, _ := p["extraction_metadata"].(map[string]any)
	require.NotNil(t, meta)
	assert.Equal(t, 1.0, meta["total_products_stored"])
	assert.Equal(t, 1.0, meta["total_services_stored"])
	assert.Equal(t, "individual", meta["storage_strategy"])

	sd, _ := p["structured_data"].(map[string]any)
	require.NotNil(t, sd)
	prods, _ := sd["products"].([]any)
	require.Len(t, prods, 1)
	entry, _ := prods[0].(map[string]any)
	assert.Equal(t, "Phở Bò", entry["name"])
	assert.Equal(t, productID, entry["product_id"])
	assert.NotEmpty(t, entry["qdrant_point_id"])

	// Both stage ids resolve to completed.
	for _, id := range []string{st.TaskID, st.OriginalExtractionTaskID} {
		rec, err := q.GetStatus(id)
		require.NoError(t, err)
		require.NotNil(t, rec, "status for %s", id)
		assert.Equal(t, queue.StateCompleted, rec.State)
	}
}

func TestStorageWorker_PartialFailureSkipsItem(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	recorder := newCallbackRecorder(t)
	embedder := &fakeEmbedder{failOn: map[string]bool{
		"Bún Chả. Category: main": true,
	}}
	vectors := &fakeVectorStore{}
	w := newStorageTestWorker(t, q, embedder, &fakeCatalogStore{}, vectors)

	st := storageTask(recorder.url(),
		[]map[string]any{
			{"name": "Phở Bò", "category": "main"},
			{"name": "Bún Chả", "category": "main"},
		},
		nil,
	)
	w.process(context.Background(), st)

	// Second product failed to embed; first still stored.
	points := vectors.stored()
	require.Len(t, points, 1)

	payloads := recorder.received()
	require.Len(t, payloads, 1)
	meta, _ := payloads[0]["extraction_metadata"].(map[string]any)
	require.NotNil(t, meta)
	assert.Equal(t, 1.0, meta["total_products_stored"])
	assert.Equal(t, "completed", payloads[0]["status"])
}

func TestStorageWorker_EmptyItemsStillCompletes(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	recorder := newCallbackRecorder(t)
	w := newStorageTestWorker(t, q, &fakeEmbedder{}, &fakeCatalogStore{}, &fakeVectorStore{})

	st := storageTask(recorder.url(), nil, nil)
	w.process(context.Background(), st)

	payloads := recorder.received()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Equal(t, "completed", p["status"])

	sd, _ := p["structured_data"].(map[string]any)
	require.NotNil(t, sd)
	prods, ok := sd["products"].([]any)
	assert.True(t, ok)
	assert.Empty(t, prods)

	rec, err := q.GetStatus(st.OriginalExtractionTaskID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, queue.StateCompleted, rec.State)
}

func TestStorageWorker_ContentForEmbeddingPreferred(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	embedder := &fakeEmbedder{}
	w := newStorageTestWorker(t, q, embedder, &fakeCatalogStore{}, &fakeVectorStore{})

	st := storageTask("",
		[]map[string]any{{
			"name":                  "Phở Bò",
			"description":           "ignored",
			"content_for_embedding": "Phở Bò đặc biệt với thịt bò tươi",
		}},
		nil,
	)
	w.process(context.Background(), st)

	require.Len(t, embedder.calls, 1)
	assert.Equal(t, "Phở Bò đặc biệt với thịt bò tươi", embedder.calls[0])
}

func TestStorageWorker_MalformedTaskDropped(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	recorder := newCallbackRecorder(t)
	w := newStorageTestWorker(t, q, &fakeEmbedder{}, &fakeCatalogStore{}, &fakeVectorStore{})

	w.handle(context.Background(), []byte("not json"))

	assert.Empty(t, recorder.received())
}

func TestStorageWorker_EndToEndThroughQueue(t *testing.T) {
	q := newTestQueue(t, queue.Config{})
	recorder := newCallbackRecorder(t)
	vectors := &fakeVectorStore{}
	w := newStorageTestWorker(t, q, &fakeEmbedder{}, &fakeCatalogStore{}, vectors)

	ctx := context.Background()
	st := storageTask(recorder.url(), []map[string]any{{"name": "Phở Bò"}}, nil)
	ok, err := q.Enqueue(ctx, queue.Storage, st.TaskID, st)
	require.NoError(t, err)
	require.True(t, ok)

	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		return len(recorder.received()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.Len(t, vectors.stored(), 1)
}
