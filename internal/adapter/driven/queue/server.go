package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// HandlerFunc processes a single decoded webhook task.
type HandlerFunc func(ctx context.Context, task model.HookTask) error

// Server pulls webhook tasks from Redis and runs them through a HandlerFunc.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer creates a Server on the Redis server at redisAddr running up to
// concurrency tasks in parallel.
func NewServer(redisAddr string, concurrency int, handle HandlerFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{QueueName: 1},
			Logger:      asynqLogger{logger: logger.With("component", "asynq")},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetried, _ := asynq.GetMaxRetry(ctx)
				logger.Error("hook task failed",
					"type", t.Type(),
					"retry", retried,
					"max_retry", maxRetried,
					"error", err,
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeHookSync, hookSyncHandler(handle, logger))

	return &Server{
		server: server,
		mux:    mux,
		logger: logger,
	}
}

// Start begins processing tasks in background goroutines and returns.
func (s *Server) Start() error {
	s.logger.Info("starting hook task server", "queue", QueueName)
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("starting hook task server: %w", err)
	}
	return nil
}

// Shutdown stops fetching new tasks and waits for running ones to finish.
func (s *Server) Shutdown() {
	s.logger.Info("stopping hook task server")
	s.server.Shutdown()
}

// hookSyncHandler adapts a HandlerFunc to an Asynq handler.
func hookSyncHandler(handle HandlerFunc, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		task, err := ParseHookSyncTask(t)
		if err != nil {
			return err
		}

		taskID, _ := asynq.GetTaskID(ctx)
		logger.Info("processing hook task",
			"task_id", taskID,
			"action", task.Action,
			"repo_id", task.RepoID,
			"html_url", task.HTMLURL,
		)

		if err := handle(ctx, task); err != nil {
			if errors.Is(err, driven.ErrPermanentHookFailure) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

// asynqLogger routes Asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal logs at error level. Asynq only calls it for unrecoverable startup
// failures, which Start reports as an error anyway.
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
