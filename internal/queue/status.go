package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// State is the lifecycle state of a task status record.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is the queryable side record for one task. Its lifecycle is
// independent of the task payload and it ages out with the bucket TTL.
type Status struct {
	TaskID     string    `json:"task_id"`
	Queue      string    `json:"queue"`
	State      State     `json:"state"`
	WorkerID   string    `json:"worker_id,omitempty"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PutStatus writes a status record, replacing any existing one.
func (q *Queue) PutStatus(st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling status for %s: %w", st.TaskID, err)
	}
	if _, err := q.kv.Put(st.TaskID, data); err != nil {
		return fmt.Errorf("writing status for %s: %w", st.TaskID, err)
	}
	return nil
}

// GetStatus returns the status record for a task id, or nil if none exists
// (unknown id or the record already expired).
func (q *Queue) GetStatus(taskID string) (*Status, error) {
	entry, err := q.kv.Get(taskID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status for %s: %w", taskID, err)
	}

	var st Status
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return nil, fmt.Errorf("decoding status for %s: %w", taskID, err)
	}
	return &st, nil
}

// MarkProcessing transitions a task to processing, recording the claiming
// worker.
func (q *Queue) MarkProcessing(taskID, workerID string) error {
	return q.update(taskID, func(st *Status) {
		st.State = StateProcessing
		st.WorkerID = workerID
	})
}

// MarkCompleted transitions a task to its terminal completed state.
func (q *Queue) MarkCompleted(taskID string) error {
	return q.update(taskID, func(st *Status) {
		st.State = StateCompleted
		st.LastError = ""
	})
}

// MarkFailed transitions a task to its terminal failed state with the last
// error message.
func (q *Queue) MarkFailed(taskID, errMsg string) error {
	return q.update(taskID, func(st *Status) {
		st.State = StateFailed
		st.LastError = errMsg
		st.RetryCount++
	})
}

func (q *Queue) update(taskID string, mutate func(*Status)) error {
	st, err := q.GetStatus(taskID)
	if err != nil {
		return err
	}
	if st == nil {
		// Record may have expired; recreate so terminal state is queryable.
		st = &Status{TaskID: taskID, CreatedAt: time.Now().UTC()}
	}
	mutate(st)
	st.UpdatedAt = time.Now().UTC()
	return q.PutStatus(*st)
}
