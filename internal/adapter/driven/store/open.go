// Package store selects and opens the persistence backend named by the
// configured database URI.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mongoadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/mongo"
	sqliteadapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/reposcan/internal/config"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Stores bundles the opened ports with the function that releases them.
type Stores struct {
	Repos   driven.RepoStore
	Users   driven.UserStore
	Backend string
	close   func() error
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to MongoDB when cfg.DBURI is a mongodb:// URI and otherwise
// opens (and migrates) the SQLite file at cfg.DBURI.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UsesMongo() {
		db, err := mongoadapter.Connect(ctx, cfg.DBURI)
		if err != nil {
			return nil, err
		}
		logger.Info("mongodb connected", "database", db.Name())

		return &Stores{
			Repos:   mongoadapter.NewRepoRepo(db),
			Users:   mongoadapter.NewUserRepo(db),
			Backend: "mongodb",
			close: func() error {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return db.Close(closeCtx)
			},
		}, nil
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBURI)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", db.Path())

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s: %w", db.Path(), err)
	}
	logger.Info("migrations complete", "schema_version", version)

	if cfg.SecretKey == nil {
		logger.Warn("REPOSCAN_SECRET_KEY not set, user tokens cannot be stored and webhooks will be skipped")
	}

	return &Stores{
		Repos:   sqliteadapter.NewRepoRepo(db),
		Users:   sqliteadapter.NewUserRepo(db, cfg.SecretKey),
		Backend: "sqlite",
		close:   db.Close,
	}, nil
}
