// Package worker implements the two polling workers of the extraction
// pipeline.
//
// Each worker is a long-running polling loop blocking on dequeue with a short
// timeout. Multiple workers of the same kind may run against the same queue
// under distinct worker ids. A single task's failure never crashes the loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/chunker"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/embeddings"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/extraction"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/normalize"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/task"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/vectorstore"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/webhook"
)

// errorPollDelay throttles the loop after dequeue errors so a broken queue
// connection does not spin hot.
const errorPollDelay = time.Second

// Fetcher retrieves the uploaded document from object storage. The extraction
// worker fetches before calling the provider so an unreachable document fails
// fast instead of burning a provider call.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ExtractionWorker consumes extraction tasks: it calls the AI extraction
// collaborator, normalizes the result, and either hands off to the storage
// queue (two-stage mode) or stores chunk points and delivers the legacy
// callback directly (standard mode).
type ExtractionWorker struct {
	id          string
	queue       *queue.Queue
	fetcher     Fetcher
	provider    extraction.Provider
	chunks      *chunker.Chunker
	embedder    embeddings.Embedder
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

// NewExtractionWorker creates an extraction worker identified by id.
func NewExtractionWorker(
	id string,
	q *queue.Queue,
	fetcher Fetcher,
	provider extraction.Provider,
	chunks *chunker.Chunker,
	embedder embeddings.Embedder,
	vectors vectorstore.Store,
	collection string,
	notifier *webhook.Notifier,
	dequeueWait time.Duration,
	logger *zap.Logger,
) *ExtractionWorker {
	if dequeueWait <= 0 {
		dequeueWait = 5 * time.Second
	}
	return &ExtractionWorker{
		id:          id,
		queue:       q,
		fetcher:     fetcher,
		provider:    provider,
		chunks:      chunks,
		embedder:    embedder,
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
func (w *ExtractionWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting extraction worker")
	go w.run(ctx)
}

// Stop halts the polling loop and waits for the in-flight task to finish.
func (w *ExtractionWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info("stopping extraction worker")
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *ExtractionWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("extraction worker stopped: context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("extraction worker stopped: stop requested")
			return
		default:
		}

		data, err := w.queue.Dequeue(ctx, queue.Extraction, w.id, w.dequeueWait)
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
			// Empty queue: poll again.
			continue
		}

		w.handle(ctx, data)
	}
}

// handle unwraps one claimed task. Panics and payload errors are contained
// here so one bad document cannot halt the loop.
func (w *ExtractionWorker) handle(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("extraction task panicked", zap.Any("panic", r))
			w.metrics.tasks.WithLabelValues("extraction", "panic").Inc()
		}
	}()

	var t task.ExtractionTask
	if err := json.Unmarshal(data, &t); err != nil {
		w.logger.Error("dropping malformed extraction task", zap.Error(err))
		w.metrics.tasks.WithLabelValues("extraction", "malformed").Inc()
		return
	}

	w.process(ctx, &t)
}

func (w *ExtractionWorker) process(ctx context.Context, t *task.ExtractionTask) {
	log := w.logger.With(
		zap.String("task_id", t.TaskID),
		zap.String("company_id", t.CompanyID),
		zap.String("file_name", t.FileName))

	log.Info("extraction task received")

	if err := w.queue.MarkProcessing(t.TaskID, w.id); err != nil {
		log.Warn("failed to mark task processing", zap.Error(err))
	}

	meta := extraction.Metadata{
		FileID:   t.FileID,
		FileName: t.FileName,
		FileType: t.FileType,
		FileSize: t.FileSize,
		Industry: t.Industry,
		Language: t.Language,
	}

	// Pre-flight fetch. An unreachable document fails the task before the
	// provider call; the download also backfills a missing file size.
	doc, err := w.fetcher.Download(ctx, t.R2URL)
	if err != nil {
		w.fail(ctx, t, fmt.Errorf("document download failed: %w", err), log)
		return
	}
	if meta.FileSize == 0 {
		meta.FileSize = int64(len(doc))
	}

	raw, err := w.provider.Extract(ctx, t.R2URL, meta, t.CompanyInfo, t.TargetCategories)
	if err != nil {
		// Extraction failure is task-fatal: report and leave re-submission
		// policy to the caller.
		w.fail(ctx, t, err, log)
		return
	}

	res := normalize.Normalize(raw)
	log.Info("extraction normalized",
		zap.Int("products", res.Summary.TotalProducts),
		zap.Int("services", res.Summary.TotalServices))

	switch t.Mode() {
	case task.ModeTwoStage:
		w.handOff(ctx, t, res, log)
	default:
		w.storeLegacy(ctx, t, res, log)
	}
}

// fail terminates a task: failure webhook, failed status, failure metric.
// There is no retry at this layer; the upstream caller owns re-submission.
func (w *ExtractionWorker) fail(ctx context.Context, t *task.ExtractionTask, cause error, log *zap.Logger) {
	log.Error("extraction task failed", zap.Error(cause))
	w.metrics.tasks.WithLabelValues("extraction", "failed").Inc()

	if t.CallbackURL != "" {
		delivered := w.notifier.Deliver(ctx, t.CallbackURL,
			webhook.NewFailurePayload(t.TaskID, t.CompanyID, cause.Error()))
		w.metrics.recordCallback(delivered)
	}
	if err := w.queue.MarkFailed(t.TaskID, cause.Error()); err != nil {
		log.Warn("failed to mark task failed", zap.Error(err))
	}
}

// handOff enqueues a storage task carrying the original task id, which the
// external backend expects in its eventual callback.
func (w *ExtractionWorker) handOff(ctx context.Context, t *task.ExtractionTask, res task.ExtractionResult, log *zap.Logger) {
	st := task.StorageTask{
		TaskID:         task.NewTaskID(),
		CompanyID:      t.CompanyID,
		StructuredData: res.StructuredData,
		Metadata: task.FileMetadata{
			FileID:   t.FileID,
			FileName: t.FileName,
			FileType: t.FileType,
			FileSize: t.FileSize,
			Industry: t.Industry,
			Language: t.Language,
		},
		CallbackURL:              t.CallbackURL,
		OriginalExtractionTaskID: t.TaskID,
		CreatedAt:                time.Now().UTC(),
	}

	ok, err := w.queue.Enqueue(ctx, queue.Storage, st.TaskID, st)
	if err == nil && !ok {
		err = fmt.Errorf("storage queue backlog full")
	}
	if err != nil {
		// Fatal for this task. No retry at this layer; the upstream caller
		// owns re-submission.
		log.Error("storage hand-off failed", zap.Error(err))
		w.metrics.tasks.WithLabelValues("extraction", "handoff_failed").Inc()
		if err := w.queue.MarkFailed(t.TaskID, err.Error()); err != nil {
			log.Warn("failed to mark task failed", zap.Error(err))
		}
		return
	}

	w.metrics.tasks.WithLabelValues("extraction", "handed_off").Inc()
	log.Info("storage task enqueued", zap.String("storage_task_id", st.TaskID))
}

// storeLegacy is the standard-mode path: chunk the raw content, store one
// point per chunk, and deliver the callback directly from this worker.
func (w *ExtractionWorker) storeLegacy(ctx context.Context, t *task.ExtractionTask, res task.ExtractionResult, log *zap.Logger) {
	var points []vectorstore.Point
	for _, c := range w.chunks.Chunk(res.RawContent) {
		vec, err := w.embedder.EmbedQuery(ctx, c.Text)
		if err != nil {
			log.Warn("chunk embedding failed, skipping chunk",
				zap.Int("chunk_index", c.Index), zap.Error(err))
			w.metrics.skipped.WithLabelValues("document_chunk", "embedding").Inc()
			continue
		}
		points = append(points, vectorstore.Point{
			ID:     uuid.New().String(),
			Vector: vec,
			Payload: map[string]any{
				"company_id":  t.CompanyID,
				"item_type":   "document_chunk",
				"file_id":     t.FileID,
				"file_name":   t.FileName,
				"chunk_index": c.Index,
				"content":     c.Text,
			},
		})
	}

	if len(points) > 0 {
		if err := w.vectors.Upsert(ctx, w.collection, points); err != nil {
			w.fail(ctx, t, fmt.Errorf("chunk upsert failed: %w", err), log)
			return
		}
	}

	if t.CallbackURL != "" {
		payload := map[string]any{
			"task_id":            t.TaskID,
			"company_id":         t.CompanyID,
			"status":             "completed",
			"timestamp":          time.Now().UTC(),
			"structured_data":    res.StructuredData,
			"extraction_summary": res.Summary,
			"extraction_metadata": map[string]any{
				"chunks_stored":    len(points),
				"storage_strategy": "legacy",
			},
		}
		delivered := w.notifier.Deliver(ctx, t.CallbackURL, payload)
		w.metrics.recordCallback(delivered)
		if !delivered {
			// Committed writes stand; a lost callback is logged, not undone.
			log.Error("legacy callback delivery failed")
		}
	}

	w.metrics.tasks.WithLabelValues("extraction", "completed").Inc()
	if err := w.queue.MarkCompleted(t.TaskID); err != nil {
		log.Warn("failed to mark task completed", zap.Error(err))
	}
	log.Info("legacy extraction task completed", zap.Int("chunks_stored", len(points)))
}
