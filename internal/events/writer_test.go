package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/internal/db"
	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/events"
	"phasegate/internal/migrate"
	"phasegate/internal/repo"
	"phasegate/internal/store"
)

func TestExecutorWritesAuditTrail(t *testing.T) {
	ctx := engine.WithActor(context.Background(), "alice")
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	r := repo.Repo{DB: conn, Now: now}
	w := events.Writer{DB: conn, Now: now}
	_, err = store.Put(ctx, r, store.Projects, domain.Project{ID: "p1", Status: domain.ProjectActive})
	require.NoError(t, err)
	wp, err := store.Put(ctx, r, store.WorkPackages, domain.WorkPackage{ID: "wp1", ProjectID: "p1", Name: "L2", Phase: domain.PhasePlanning})
	require.NoError(t, err)

	ev, err := engine.NewEvaluator(r, engine.WithClock(now))
	require.NoError(t, err)
	x := engine.Executor{Evaluator: ev, Auditor: w, Now: now}

	_, blocked, err := x.Execute(ctx, r, wp, domain.PhaseDetailing, engine.DefaultOptions())
	require.NoError(t, err)
	require.False(t, blocked.Pass)

	_, err = r.Update(ctx, store.WorkPackages, "wp1", store.Fields{"scope_description": "Beams"}, 0)
	require.NoError(t, err)
	wp, err = store.GetAs[domain.WorkPackage](ctx, r, store.WorkPackages, "wp1")
	require.NoError(t, err)
	_, applied, err := x.Execute(ctx, r, wp, domain.PhaseDetailing, engine.DefaultOptions())
	require.NoError(t, err)
	require.True(t, applied.Pass)

	got, err := w.List(ctx, events.Filters{WorkPackageID: "wp1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, engine.EventTransitionApplied, got[0].Type)
	assert.Equal(t, engine.EventTransitionBlocked, got[1].Type)
	assert.Equal(t, "alice", got[0].ActorID)
	assert.Equal(t, "p1", got[0].ProjectID)
	assert.Equal(t, applied, got[0].Trace)
	assert.Equal(t, blocked, got[1].Trace)

	older, err := w.List(ctx, events.Filters{WorkPackageID: "wp1", Before: got[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, got[1].ID, older[0].ID)

	onlyBlocked, err := w.List(ctx, events.Filters{Type: engine.EventTransitionBlocked})
	require.NoError(t, err)
	assert.Len(t, onlyBlocked, 1)
}
