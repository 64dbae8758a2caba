// Package app wires a record store, audit log and engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"phasegate/internal/config"
	"phasegate/internal/db"
	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/events"
	"phasegate/internal/migrate"
	"phasegate/internal/repo"
	"phasegate/internal/repo/postgres"
	"phasegate/internal/store"
	"phasegate/internal/store/memstore"
)

// EventLog records and lists transition audit events.
type EventLog interface {
	engine.Auditor
	ListTransitions(ctx context.Context, workPackageID string, limit int) ([]domain.TransitionEvent, error)
}

// App is an opened workspace.
type App struct {
	Engine engine.Engine
	Store  store.Store
	Events EventLog
	close  func() error
}

func (a *App) Close() error {
	if a == nil || a.close == nil {
		return nil
	}
	return a.close()
}

// Open connects the configured store driver, applies migrations and builds
// the engine.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{}
	switch cfg.Store.Driver {
	case "memory":
		a.Store = memstore.New()
		a.Events = &events.Memory{}
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.Store, a.Events, a.close = pg, pg, pg.Close
	case "", "sqlite":
		conn, err := db.Open(db.Config{Workspace: workspace, DSN: cfg.Store.DSN})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		n, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if n > 0 {
			log.Info("schema migrated", zap.Int("applied", n))
		}
		a.Store = repo.Repo{DB: conn}
		a.Events = events.Writer{DB: conn}
		a.close = conn.Close
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	eng, err := engine.New(a.Store, cfg, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	eng.Auditor = a.Events
	a.Engine = eng
	return a, nil
}

// ResolveProject returns override when set, else the only project in the
// store. Zero or several projects without an override is an error.
func ResolveProject(ctx context.Context, r store.Reader, override string) (string, error) {
	if override != "" {
		if _, err := r.Get(ctx, store.Projects, override); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("project %s not found", override)
			}
			return "", err
		}
		return override, nil
	}
	recs, err := r.Filter(ctx, store.Projects, nil)
	if err != nil {
		return "", err
	}
	switch len(recs) {
	case 1:
		return recs[0].ID, nil
	case 0:
		return "", errors.New("no project yet; create one with pg project init")
	default:
		return "", errors.New("several projects found; use --project")
	}
}
