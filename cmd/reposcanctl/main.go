// Command reposcanctl administers the repository directory directly against
// its configured store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/github"
	queueadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/queue"
	"github.com/ericfisherdev/reposcan/internal/adapter/driven/store"
	"github.com/ericfisherdev/reposcan/internal/application"
	"github.com/ericfisherdev/reposcan/internal/config"
	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// directory is the part of application.RepoDirectory the commands drive.
type directory interface {
	GetOrInsertRepo(ctx context.Context, p application.RepoParams) (application.Membership, error)
	RemoveUserFromRepo(ctx context.Context, userID string, repoID int64, htmlURL string) (application.Removal, error)
	RemoveRepo(ctx context.Context, userID string, repoID int64, htmlURL string) error
	FindAllReposByUser(ctx context.Context, userID string) ([]model.Repository, error)
	SaveUserToken(ctx context.Context, userID, token string) error
}

// opener connects a directory for one command invocation and returns the
// function that releases it.
type opener func(ctx context.Context) (directory, func() error, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openDirectory).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "reposcanctl",
		Short:        "Administer the reposcan repository directory",
		SilenceUsage: true,
	}

	root.AddCommand(
		newReposCmd(open),
		newTokenCmd(open),
		newDiffCmd(),
	)

	return root
}

// openDirectory wires the same stores and hook queue as the server. Without
// Redis, webhook tasks run inline before the command returns.
func openDirectory(ctx context.Context) (directory, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	stores, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{stores.Close}

	var registrar driven.HookRegistrar
	if cfg.HooksEnabled() {
		reg, err := githubadapter.NewRegistrar(githubadapter.HookConfig{
			CallbackURL: cfg.HookURL,
			Secret:      cfg.HookSecret,
			Events:      cfg.HookEvents,
			BaseURL:     cfg.GitHubAPIURL,
		}, logger)
		if err != nil {
			_ = stores.Close()
			return nil, nil, err
		}
		registrar = reg
	}

	var hooks driven.HookQueue
	if cfg.UsesRedis() {
		client := queueadapter.NewClient(cfg.RedisAddr, logger)
		closers = append(closers, client.Close)
		hooks = client
	} else {
		hooks = inlineQueue{worker: application.NewHookWorker(stores.Users, registrar, 1, logger)}
	}

	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	return application.NewRepoDirectory(stores.Repos, stores.Users, hooks, logger), closeAll, nil
}

// inlineQueue runs each task as it is enqueued.
type inlineQueue struct {
	worker *application.HookWorker
}

func (q inlineQueue) Enqueue(ctx context.Context, task model.HookTask) error {
	if err := q.worker.Process(ctx, task); err != nil {
		return fmt.Errorf("%s webhook: %w", task.Action, err)
	}
	return nil
}

// withDirectory opens the directory, runs fn and closes it again.
func withDirectory(cmd *cobra.Command, open opener, fn func(ctx context.Context, dir directory) error) error {
	ctx := cmd.Context()
	dir, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", closeErr)
		}
	}()
	return fn(ctx, dir)
}
