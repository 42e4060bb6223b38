// Package queue implements the HookQueue port on top of Asynq, a
// Redis-backed task queue. Tasks survive restarts and failed webhook calls
// are retried with backoff.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
)

const (
	// TypeHookSync is the task type under which webhook tasks are stored.
	TypeHookSync = "hook:sync"

	// QueueName is the Asynq queue webhook tasks are written to.
	QueueName = "default"

	maxRetry    = 5
	taskTimeout = 30 * time.Second
)

// NewHookSyncTask serializes task into an Asynq task.
func NewHookSyncTask(task model.HookTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encoding hook task: %w", err)
	}

	return asynq.NewTask(
		TypeHookSync,
		payload,
		asynq.MaxRetry(maxRetry),
		asynq.Queue(QueueName),
		asynq.Timeout(taskTimeout),
	), nil
}

// ParseHookSyncTask decodes the payload written by NewHookSyncTask. A payload
// that can never be processed wraps asynq.SkipRetry.
func ParseHookSyncTask(t *asynq.Task) (model.HookTask, error) {
	if t.Type() != TypeHookSync {
		return model.HookTask{}, fmt.Errorf("unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}

	var task model.HookTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return model.HookTask{}, fmt.Errorf("decoding hook task: %v: %w", err, asynq.SkipRetry)
	}

	switch task.Action {
	case model.HookActionRegister, model.HookActionDeregister:
	default:
		return model.HookTask{}, fmt.Errorf("unknown hook action %q: %w", task.Action, asynq.SkipRetry)
	}

	return task, nil
}
