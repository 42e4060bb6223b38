package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// ErrUnknownHookAction is returned by Process for a task whose action is
// neither register nor deregister.
var ErrUnknownHookAction = errors.New("unknown hook action")

// hookDrainTimeout bounds the work done on buffered tasks after shutdown.
const hookDrainTimeout = 10 * time.Second

// Compile-time interface satisfaction check.
var _ driven.HookQueue = (*HookWorker)(nil)

// HookWorker runs webhook tasks in-process. It is the default HookQueue when
// no Redis-backed queue is configured.
type HookWorker struct {
	users     driven.UserStore
	registrar driven.HookRegistrar
	tasks     chan model.HookTask
	logger    *slog.Logger
}

// NewHookWorker creates a HookWorker buffering up to size tasks. registrar
// may be nil when webhook registration is not configured; tasks are then
// dropped with a log line.
func NewHookWorker(users driven.UserStore, registrar driven.HookRegistrar, size int, logger *slog.Logger) *HookWorker {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HookWorker{
		users:     users,
		registrar: registrar,
		tasks:     make(chan model.HookTask, size),
		logger:    logger,
	}
}

// Enqueue buffers task for Start. It blocks while the buffer is full until
// the context is canceled.
func (w *HookWorker) Enqueue(ctx context.Context, task model.HookTask) error {
	select {
	case w.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start processes tasks until the context is canceled, then runs the tasks
// still buffered within hookDrainTimeout and returns. Callers stop producing
// tasks before canceling and wait for Start to return before closing the
// stores it reads.
func (w *HookWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx)
			return
		case task := <-w.tasks:
			w.run(ctx, task)
		}
	}
}

func (w *HookWorker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookDrainTimeout)
	defer cancel()

	drained := 0
	for {
		select {
		case task := <-w.tasks:
			if drainCtx.Err() != nil {
				w.logger.Warn("hook worker stopped before draining", "dropped", len(w.tasks)+1, "drained", drained)
				return
			}
			w.run(drainCtx, task)
			drained++
		default:
			w.logger.Info("hook worker stopped", "drained", drained)
			return
		}
	}
}

func (w *HookWorker) run(ctx context.Context, task model.HookTask) {
	if err := w.Process(ctx, task); err != nil {
		w.logger.Error("hook task failed",
			"action", task.Action,
			"repo_id", task.RepoID,
			"html_url", task.HTMLURL,
			"error", err,
		)
	}
}

// Process runs a single task: it resolves the user's access token and calls
// the registrar. A user without a token is skipped without error.
func (w *HookWorker) Process(ctx context.Context, task model.HookTask) error {
	if task.Action != model.HookActionRegister && task.Action != model.HookActionDeregister {
		return fmt.Errorf("%w: %q", ErrUnknownHookAction, task.Action)
	}

	if w.registrar == nil {
		w.logger.Info("webhook registration disabled, skipping task", "action", task.Action, "repo_id", task.RepoID)
		return nil
	}

	token, err := w.users.AccessToken(ctx, task.UserID)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		// No key means no token could ever have been stored.
		w.logger.Warn("token storage not configured, skipping hook task", "action", task.Action, "repo_id", task.RepoID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve token for user %q: %w", task.UserID, err)
	}
	if token == "" {
		w.logger.Debug("no access token, skipping hook task", "action", task.Action, "user_id", task.UserID)
		return nil
	}

	switch task.Action {
	case model.HookActionRegister:
		return w.registrar.Register(ctx, task.HTMLURL, token)
	default:
		return w.registrar.Deregister(ctx, task.HTMLURL, token)
	}
}
