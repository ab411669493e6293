package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/catalog"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/embeddings"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/task"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/vectorstore"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/webhook"
)

// storageStrategy identifies the per-item storage path in callbacks.
const storageStrategy = "individual"

// itemOutcome is the result of one item's storage attempt. Expected per-item
// failures are data, not control flow: outcomes are accumulated and the rest
// of the task proceeds.
type itemOutcome struct {
	stored bool
	reason string
	entry  webhook.StoredItem
}

// StorageWorker consumes storage tasks: per item it generates an embedding,
// registers the item with the catalog registrar, and upserts one vector
// point; afterwards it delivers one aggregate callback.
type StorageWorker struct {
	id          string
	queue       *queue.Queue
	embedder    embeddings.Embedder
	registrar   *catalog.Registrar
	vectors     vectorstore.Store
	collection  string
	notifier    *webhook.Notifier
	dequeueWait time.Duration
	logger      *zap.Logger
	metrics     *workerMetrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewStorageWorker creates a storage worker identified by id.
func NewStorageWorker(
	id string,
	q *queue.Queue,
	embedder embeddings.Embedder,
	registrar *catalog.Registrar,
	vectors vectorstore.Store,
	collection string,
	notifier *webhook.Notifier,
	dequeueWait time.Duration,
	logger *zap.Logger,
) *StorageWorker {
	if dequeueWait <= 0 {
		dequeueWait = 5 * time.Second
	}
	return &StorageWorker{
		id:          id,
		queue:       q,
		embedder:    embedder,
		registrar:   registrar,
		vectors:     vectors,
		collection:  collection,
		notifier:    notifier,
		dequeueWait: dequeueWait,
		logger:      logger.With(zap.String("worker_id", id)),
		metrics:     newMetrics(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the polling loop. Returns immediately.
func (w *StorageWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting storage worker")
	go w.run(ctx)
}

// Stop halts the polling loop and waits for the in-flight task to finish.
func (w *StorageWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info("stopping storage worker")
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *StorageWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("storage worker stopped: context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("storage worker stopped: stop requested")
			return
		default:
		}

		data, err := w.queue.Dequeue(ctx, queue.Storage, w.id, w.dequeueWait)
		if err != nil {
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-time.After(errorPollDelay):
			case <-ctx.Done():
			case <-w.stopCh:
			}
			continue
		}
		if data == nil {
			continue
		}

		w.handle(ctx, data)
	}
}

func (w *StorageWorker) handle(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("storage task panicked", zap.Any("panic", r))
			w.metrics.tasks.WithLabelValues("storage", "panic").Inc()
		}
	}()

	var t task.StorageTask
	if err := json.Unmarshal(data, &t); err != nil {
		w.logger.Error("dropping malformed storage task", zap.Error(err))
		w.metrics.tasks.WithLabelValues("storage", "malformed").Inc()
		return
	}

	w.process(ctx, &t)
}

func (w *StorageWorker) process(ctx context.Context, t *task.StorageTask) {
	// The callback always references the id the external backend submitted.
	callbackID := t.OriginalExtractionTaskID
	if callbackID == "" {
		callbackID = t.TaskID
	}

	log := w.logger.With(
		zap.String("task_id", t.TaskID),
		zap.String("extraction_task_id", callbackID),
		zap.String("company_id", t.CompanyID))

	log.Info("storage task received",
		zap.Int("products", len(t.StructuredData.Products)),
		zap.Int("services", len(t.StructuredData.Services)))

	if err := w.queue.MarkProcessing(t.TaskID, w.id); err != nil {
		log.Warn("failed to mark task processing", zap.Error(err))
	}

	products := w.storeItems(ctx, t, t.StructuredData.Products, catalog.ItemTypeProduct, log)
	services := w.storeItems(ctx, t, t.StructuredData.Services, catalog.ItemTypeService, log)

	// Zero stored items still completes with empty lists: "nothing to store"
	// is distinct from a pipeline failure.
	payload := webhook.NewSuccessPayload(callbackID, t.CompanyID, storageStrategy,
		storedEntries(products), storedEntries(services))

	if t.CallbackURL != "" {
		delivered := w.notifier.Deliver(ctx, t.CallbackURL, payload)
		w.metrics.recordCallback(delivered)
		if !delivered {
			// Vector-store writes already committed stay committed.
			log.Error("storage callback delivery failed")
		}
	}

	w.metrics.tasks.WithLabelValues("storage", "completed").Inc()
	for _, id := range []string{t.TaskID, callbackID} {
		if err := w.queue.MarkCompleted(id); err != nil {
			log.Warn("failed to mark task completed", zap.String("status_id", id), zap.Error(err))
		}
	}

	log.Info("storage task completed",
		zap.Int("products_stored", payload.ExtractionMetadata.TotalProductsStored),
		zap.Int("services_stored", payload.ExtractionMetadata.TotalServicesStored))
}

// storeItems runs embed → register → upsert for each item sequentially, in
// extraction order. One item's failure skips that item only.
func (w *StorageWorker) storeItems(ctx context.Context, t *task.StorageTask, items []map[string]any, itemType string, log *zap.Logger) []itemOutcome {
	outcomes := make([]itemOutcome, 0, len(items))

	for i, item := range items {
		name := stringField(item, "name")
		itemLog := log.With(
			zap.String("item_type", itemType),
			zap.Int("item_index", i),
			zap.String("name", name))

		text := embeddingText(item)
		vec, err := w.embedder.EmbedQuery(ctx, text)
		if err != nil {
			itemLog.Warn("embedding failed, skipping item", zap.Error(err))
			w.metrics.skipped.WithLabelValues(itemType, "embedding").Inc()
			outcomes = append(outcomes, itemOutcome{reason: "embedding: " + err.Error()})
			continue
		}

		enriched := w.registrar.Register(ctx, item, t.CompanyID, itemType, t.Metadata.FileID, t.Metadata.FileName)
		catalogID := stringField(enriched, idKey(itemType))

		pointID := uuid.New().String()
		point := vectorstore.Point{
			ID:      pointID,
			Vector:  vec,
			Payload: pointPayload(t, itemType, catalogID, text, item),
		}

		if err := w.vectors.Upsert(ctx, w.collection, []vectorstore.Point{point}); err != nil {
			itemLog.Warn("vector upsert failed, skipping item", zap.Error(err))
			w.metrics.skipped.WithLabelValues(itemType, "upsert").Inc()
			outcomes = append(outcomes, itemOutcome{reason: "upsert: " + err.Error()})
			continue
		}

		w.metrics.items.WithLabelValues(itemType).Inc()
		outcomes = append(outcomes, itemOutcome{
			stored: true,
			entry: webhook.StoredItem{
				"name":            name,
				idKey(itemType):   catalogID,
				"qdrant_point_id": pointID,
				"category":        stringField(item, "category"),
				"enriched_data":   enriched,
			},
		})
	}

	return outcomes
}

func storedEntries(outcomes []itemOutcome) []webhook.StoredItem {
	entries := make([]webhook.StoredItem, 0, len(outcomes))
	for _, o := range outcomes {
		if o.stored {
			entries = append(entries, o.entry)
		}
	}
	return entries
}

// pointPayload builds the filterable metadata for one vector point. The
// catalog id always resolves to a registrar record (or its fallback id) since
// registration runs before the upsert.
func pointPayload(t *task.StorageTask, itemType, catalogID, content string, item map[string]any) map[string]any {
	payload := map[string]any{
		"company_id":      t.CompanyID,
		"item_type":       itemType,
		idKey(itemType):   catalogID,
		"file_id":         t.Metadata.FileID,
		"content":         content,
		"category":        stringField(item, "category"),
		"sub_category":    stringField(item, "sub_category"),
		"target_audience": stringField(item, "target_audience"),
	}
	if tags := stringList(item["tags"]); len(tags) > 0 {
		payload["tags"] = tags
	}
	return payload
}

// embeddingText prefers the collaborator-supplied embedding content and
// synthesizes a blurb from name, description and category otherwise.
func embeddingText(item map[string]any) string {
	if s := stringField(item, "content_for_embedding"); s != "" {
		return s
	}

	parts := make([]string, 0, 3)
	if s := stringField(item, "name"); s != "" {
		parts = append(parts, s)
	}
	if s := stringField(item, "description"); s != "" {
		parts = append(parts, s)
	}
	if s := stringField(item, "category"); s != "" {
		parts = append(parts, "Category: "+s)
	}
	return strings.Join(parts, ". ")
}

func idKey(itemType string) string {
	if itemType == catalog.ItemTypeService {
		return "service_id"
	}
	return "product_id"
}

func stringField(item map[string]any, key string) string {
	s, _ := item[key].(string)
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, entry := range list {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
