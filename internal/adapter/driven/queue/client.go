package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HookQueue = (*Client)(nil)

// Client enqueues webhook tasks into Redis.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient creates a Client connected to the Redis server at redisAddr.
func NewClient(redisAddr string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// Enqueue writes task to the queue. Each task gets a fresh ID so that the
// same action may be enqueued again after an earlier one completed.
func (c *Client) Enqueue(ctx context.Context, task model.HookTask) error {
	t, err := NewHookSyncTask(task)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, t, asynq.TaskID(uuid.NewString()))
	if err != nil {
		return fmt.Errorf("enqueueing %s task for repository %d: %w", task.Action, task.RepoID, err)
	}

	c.logger.Debug("hook task enqueued",
		"task_id", info.ID,
		"queue", info.Queue,
		"action", task.Action,
		"repo_id", task.RepoID,
	)

	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
