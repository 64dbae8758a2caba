package repo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/internal/db"
	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/migrate"
	"phasegate/internal/repo"
	"phasegate/internal/store"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestCreateGetAndDuplicate(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	d, err := store.Put(ctx, r, store.DrawingSets, domain.DrawingSet{ID: "d1", ProjectID: "p1", Number: "S-101", Status: "FFF"})
	require.NoError(t, err)
	rec, err := r.Get(ctx, store.DrawingSets, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)

	got, err := store.GetAs[domain.DrawingSet](ctx, r, store.DrawingSets, "d1")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = store.Put(ctx, r, store.DrawingSets, domain.DrawingSet{ID: "d1", Number: "dup"})
	assert.True(t, errors.Is(err, store.ErrConflict))

	_, err = r.Get(ctx, store.DrawingSets, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = r.Get(ctx, store.RFIs, "d1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestFilterPushdownAndMatch(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	for _, rfi := range []domain.RFI{
		{ID: "r1", ProjectID: "p1", ReleaseGroup: "RG-1", Number: "RFI-1", Status: domain.RFIOpen, FabricationBlocking: true},
		{ID: "r2", ProjectID: "p1", ReleaseGroup: "RG-1", Number: "RFI-2", Status: domain.RFIAnswered, FabricationBlocking: true},
		{ID: "r3", ProjectID: "p1", ReleaseGroup: "RG-2", Number: "RFI-3", Status: domain.RFIPendingResponse, FabricationBlocking: true},
		{ID: "r4", ProjectID: "p2", ReleaseGroup: "RG-1", Number: "RFI-4", Status: domain.RFIOpen, FabricationBlocking: true},
	} {
		_, err := store.Put(ctx, r, store.RFIs, rfi)
		require.NoError(t, err)
	}
	got, err := store.FilterAs[domain.RFI](ctx, r, store.RFIs, store.Where(
		store.Eq("project_id", "p1"),
		store.Eq("fabrication_blocking", true),
		store.In("status", domain.RFIOpen, domain.RFIPendingResponse),
	))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r3", got[1].ID)

	none, err := r.Filter(ctx, store.RFIs, store.Where(store.Eq("project_id", "p9")))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = r.Create(ctx, store.Documents, store.Record{ID: "doc1", Fields: store.Fields{"work_package_id": "wp1", "tags": []string{"as-built", "closeout"}}})
	require.NoError(t, err)
	docs, err := r.Filter(ctx, store.Documents, store.Where(store.Eq("work_package_id", "wp1"), store.Eq("tags", "closeout")))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUpdateVersionCheck(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	rec, err := r.Create(ctx, store.WorkPackages, store.Record{ID: "wp1", Fields: store.Fields{"project_id": "p1", "phase": "planning"}})
	require.NoError(t, err)

	up, err := r.Update(ctx, store.WorkPackages, "wp1", store.Fields{"phase": "detailing", "version": 99}, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), up.Version)
	assert.Equal(t, "detailing", up.Fields["phase"])
	assert.Equal(t, "p1", up.Fields["project_id"])

	_, err = r.Update(ctx, store.WorkPackages, "wp1", store.Fields{"phase": "fabrication"}, rec.Version)
	assert.True(t, errors.Is(err, store.ErrConflict))

	_, err = r.Update(ctx, store.WorkPackages, "nope", store.Fields{"phase": "fabrication"}, 0)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	got, err := r.Get(ctx, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, up, got)
}

func TestConcurrentExecuteHasOneWinner(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_, err := store.Put(ctx, r, store.Projects, domain.Project{ID: "p1", Status: domain.ProjectActive})
	require.NoError(t, err)
	wp, err := store.Put(ctx, r, store.WorkPackages, domain.WorkPackage{ID: "wp1", ProjectID: "p1", Name: "L2", Phase: domain.PhasePlanning, ScopeDescription: "Beams"})
	require.NoError(t, err)

	ev, err := engine.NewEvaluator(r)
	require.NoError(t, err)
	x := engine.Executor{Evaluator: ev}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = x.Execute(ctx, r, wp, domain.PhaseDetailing, engine.DefaultOptions())
		}()
	}
	wg.Wait()
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var cm *engine.ConcurrentModificationError
		assert.True(t, errors.As(err, &cm), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	got, err := store.GetAs[domain.WorkPackage](ctx, r, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDetailing, got.Phase)
	assert.Equal(t, int64(2), got.Version)
}
