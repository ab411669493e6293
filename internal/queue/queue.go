// Package queue provides durable named FIFO task queues on NATS JetStream.
//
// Each named queue ("extraction", "storage") is an independent work-queue
// stream. Enqueue reports backpressure instead of erroring when the backlog is
// full. Dequeue claims one task for a named worker via a durable pull
// consumer; the queue layer delivers a given task to exactly one dequeue call.
// Task status lives in a key-value bucket with a TTL so records age out.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Named queues used by the pipeline.
const (
	Extraction = "extraction"
	Storage    = "storage"
)

const (
	statusBucket = "task_status"

	// jsErrCodeMaxMsgs is the JetStream API error returned when publishing to
	// a full stream configured with DiscardNew.
	jsErrCodeMaxMsgs = 10077
)

// ErrQueueClosed indicates operations on a closed queue.
var ErrQueueClosed = errors.New("queue closed")

// Config holds queue limits.
type Config struct {
	// MaxBacklog is the maximum number of pending tasks per named queue.
	MaxBacklog int64

	// StatusTTL is how long task status records are retained.
	StatusTTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxBacklog == 0 {
		c.MaxBacklog = 1000
	}
	if c.StatusTTL == 0 {
		c.StatusTTL = 24 * time.Hour
	}
}

// Queue manages named task queues and their status records.
type Queue struct {
	js     nats.JetStreamContext
	kv     nats.KeyValue
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[string]*nats.Subscription
	streams map[string]bool
	closed  bool
}

// New creates a queue manager on an established NATS connection.
// The task status bucket is created if it does not exist.
func New(nc *nats.Conn, config Config, logger *zap.Logger) (*Queue, error) {
	config.ApplyDefaults()

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(statusBucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: statusBucket,
			TTL:    config.StatusTTL,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("creating status bucket: %w", err)
	}

	return &Queue{
		js:      js,
		kv:      kv,
		config:  config,
		logger:  logger,
		subs:    make(map[string]*nats.Subscription),
		streams: make(map[string]bool),
	}, nil
}

func streamName(queue string) string {
	return "TASKS_" + strings.ToUpper(queue)
}

func subjectName(queue string) string {
	return "tasks." + queue
}

// ensureStream creates the work-queue stream for a named queue if missing.
// DiscardNew + MaxMsgs turns a full backlog into a publish rejection, which
// Enqueue surfaces as backpressure.
func (q *Queue) ensureStream(queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.streams[queue] {
		return nil
	}

	name := streamName(queue)
	_, err := q.js.StreamInfo(name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{subjectName(queue)},
			Retention: nats.WorkQueuePolicy,
			Discard:   nats.DiscardNew,
			MaxMsgs:   q.config.MaxBacklog,
			Storage:   nats.FileStorage,
		})
	}
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", name, err)
	}

	q.streams[queue] = true
	return nil
}

// Enqueue appends a task payload to the named queue and records its status as
// queued. Returns false with a nil error when the backlog is full; the caller
// must surface a service-unavailable condition rather than drop the task
// silently. No partial write occurs on rejection.
func (q *Queue) Enqueue(ctx context.Context, queue, taskID string, payload any) (bool, error) {
	if err := q.ensureStream(queue); err != nil {
		return false, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshaling task %s: %w", taskID, err)
	}

	// Fast-path backlog check so a full queue is rejected before any write.
	info, err := q.js.StreamInfo(streamName(queue))
	if err != nil {
		return false, fmt.Errorf("reading stream info for %s: %w", queue, err)
	}
	if info.State.Msgs >= uint64(q.config.MaxBacklog) {
		q.logger.Warn("queue backlog full, rejecting task",
			zap.String("queue", queue),
			zap.String("task_id", taskID),
			zap.Uint64("backlog", info.State.Msgs))
		return false, nil
	}

	if _, err := q.js.Publish(subjectName(queue), data, nats.Context(ctx)); err != nil {
		var apiErr *nats.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode == jsErrCodeMaxMsgs {
			return false, nil
		}
		return false, fmt.Errorf("publishing task %s to %s: %w", taskID, queue, err)
	}

	if err := q.PutStatus(Status{
		TaskID:    taskID,
		Queue:     queue,
		State:     StateQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		// Status is a side record; the task itself is already durable.
		q.logger.Warn("failed to write task status", zap.String("task_id", taskID), zap.Error(err))
	}

	q.logger.Debug("task enqueued", zap.String("queue", queue), zap.String("task_id", taskID))
	return true, nil
}

// Dequeue claims one task from the named queue for the given worker, blocking
// up to wait. Returns (nil, nil) on an empty queue; the worker loop must treat
// that as "poll again", not as an error.
//
// The message is acknowledged on receipt: once claimed, a task runs to
// completion or failure and is never redelivered by the queue layer.
func (q *Queue) Dequeue(ctx context.Context, queue, workerID string, wait time.Duration) ([]byte, error) {
	sub, err := q.workerSub(queue, workerID)
	if err != nil {
		return nil, err
	}

	msgs, err := sub.Fetch(1, nats.MaxWait(wait))
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", queue, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := msgs[0]
	if err := msg.Ack(); err != nil {
		return nil, fmt.Errorf("acking message from %s: %w", queue, err)
	}

	return msg.Data, nil
}

// workerSub returns the durable pull subscription for a worker, creating it on
// first use. All workers of a queue bind to one durable consumer, so a task is
// claimed by exactly one of them.
func (q *Queue) workerSub(queue, workerID string) (*nats.Subscription, error) {
	if err := q.ensureStream(queue); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	key := queue + "/" + workerID
	if sub, ok := q.subs[key]; ok {
		return sub, nil
	}

	sub, err := q.js.PullSubscribe(subjectName(queue), queue+"-workers")
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", queue, err)
	}
	q.subs[key] = sub
	return sub, nil
}

// Size returns the number of pending tasks in the named queue.
func (q *Queue) Size(queue string) (uint64, error) {
	if err := q.ensureStream(queue); err != nil {
		return 0, err
	}
	info, err := q.js.StreamInfo(streamName(queue))
	if err != nil {
		return 0, fmt.Errorf("reading stream info for %s: %w", queue, err)
	}
	return info.State.Msgs, nil
}

// Close drains all worker subscriptions. The NATS connection itself is owned
// by the caller.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for key, sub := range q.subs {
		if err := sub.Unsubscribe(); err != nil {
			q.logger.Warn("failed to unsubscribe worker", zap.String("worker", key), zap.Error(err))
		}
	}
	q.subs = nil
}
