package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/github"
	queueadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/queue"
	"github.com/ericfisherdev/reposcan/internal/adapter/driven/store"
	httphandler "github.com/ericfisherdev/reposcan/internal/adapter/driving/http"
	"github.com/ericfisherdev/reposcan/internal/application"
	"github.com/ericfisherdev/reposcan/internal/config"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"mongo", cfg.UsesMongo(),
		"hooks_enabled", cfg.HooksEnabled(),
		"redis", cfg.UsesRedis(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the repository store (SQLite with migrations, or MongoDB).
	stores, err := store.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stores.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Create the webhook registrar (nil when no callback URL is configured).
	var registrar driven.HookRegistrar
	if cfg.HooksEnabled() {
		reg, err := githubadapter.NewRegistrar(githubadapter.HookConfig{
			CallbackURL: cfg.HookURL,
			Secret:      cfg.HookSecret,
			Events:      cfg.HookEvents,
			BaseURL:     cfg.GitHubAPIURL,
		}, slog.Default())
		if err != nil {
			return err
		}
		registrar = reg
		slog.Info("webhook registrar created", "callback_url", cfg.HookURL, "events", cfg.HookEvents)
	} else {
		slog.Info("no webhook callback configured, repositories are tracked without webhooks")
	}

	// 5. Create the hook queue: Redis-backed when configured, in-process otherwise.
	worker := application.NewHookWorker(stores.Users, registrar, cfg.HookQueueSize, slog.Default())

	var hooks driven.HookQueue = worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	if cfg.UsesRedis() {
		client := queueadapter.NewClient(cfg.RedisAddr, slog.Default())
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				slog.Error("error closing queue client", "error", closeErr)
			}
		}()
		hooks = client

		server := queueadapter.NewServer(cfg.RedisAddr, cfg.HookConcurrency, worker.Process, slog.Default())
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Shutdown()
		close(workerDone)
	} else {
		go func() {
			defer close(workerDone)
			worker.Start(workerCtx)
		}()
	}

	// 6. Create the repository directory.
	dir := application.NewRepoDirectory(stores.Repos, stores.Users, hooks, slog.Default())

	// 7. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(dir, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("reposcan started", "listen_addr", cfg.ListenAddr, "store", stores.Backend)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 10. No more tasks can arrive; let the in-process worker finish before
	// the stores close.
	stopWorker()
	<-workerDone

	slog.Info("shutdown complete")
	return nil
}
