package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/store"
)

type memAuditor struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
	err    error
}

func (a *memAuditor) RecordTransition(_ context.Context, ev domain.TransitionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return a.err
}

func newExecutor(t *testing.T, r store.Reader, a engine.Auditor) engine.Executor {
	t.Helper()
	return engine.Executor{
		Evaluator: newEvaluator(t, r),
		Auditor:   a,
		Log:       zaptest.NewLogger(t),
		Now:       fixedNow,
	}
}

func TestExecuteBlockedDoesNotWrite(t *testing.T) {
	s := newFixture(t)
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDetailing})
	w := &spyWriter{inner: s}
	audit := &memAuditor{}

	got, trace, err := newExecutor(t, s, audit).Execute(context.Background(), w, wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, trace.Pass)
	assert.Equal(t, wp, got)
	assert.Zero(t, w.count())

	stored, err := store.GetAs[domain.WorkPackage](context.Background(), s, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDetailing, stored.Phase)

	require.Len(t, audit.events, 1)
	assert.Equal(t, engine.EventTransitionBlocked, audit.events[0].Type)
	assert.Equal(t, trace, audit.events[0].Trace)
}

func TestExecuteIllegalEdgeDoesNotWrite(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseDetailing)
	w := &spyWriter{inner: s}

	got, trace, err := newExecutor(t, s, nil).Execute(context.Background(), w, wp, domain.PhaseDelivery, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{engine.ReasonIllegalTransition}, trace.Reasons)
	assert.Equal(t, wp, got)
	assert.Zero(t, w.count())
}

func TestExecuteAdvancesReleasedWorkPackage(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.DrawingSets, domain.DrawingSet{ID: "d1", ProjectID: "p1", Number: "S-101", Status: domain.DrawingFinalForFab})
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDetailing, DrawingSetIDs: []string{"d1"}})
	w := &spyWriter{inner: s}
	audit := &memAuditor{}
	ctx := engine.WithActor(context.Background(), "alice")

	got, trace, err := newExecutor(t, s, audit).Execute(ctx, w, wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, trace.Pass)
	assert.Equal(t, 1, w.count())
	assert.Equal(t, domain.PhaseFabrication, got.Phase)
	assert.Equal(t, wp.Version+1, got.Version)
	assert.Equal(t, fixedNow().Format(time.RFC3339), got.UpdatedAt)
	assert.Equal(t, []string{"d1"}, got.DrawingSetIDs)

	stored, err := store.GetAs[domain.WorkPackage](context.Background(), s, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	require.Len(t, audit.events, 1)
	assert.Equal(t, engine.EventTransitionApplied, audit.events[0].Type)
	assert.Equal(t, "alice", audit.events[0].ActorID)
	assert.Equal(t, "p1", audit.events[0].ProjectID)
}

func TestExecuteStaleVersionIsConcurrentModification(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseErection)
	_, err := s.Update(context.Background(), store.WorkPackages, wp.ID, store.Fields{"name": "renamed"}, wp.Version)
	require.NoError(t, err)
	w := &spyWriter{inner: s}

	got, trace, err := newExecutor(t, s, nil).Execute(context.Background(), w, wp, domain.PhaseCloseout, engine.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))
	var cm *engine.ConcurrentModificationError
	require.True(t, errors.As(err, &cm))
	assert.Equal(t, "wp1", cm.WorkPackageID)
	assert.True(t, trace.Pass)
	assert.Equal(t, wp, got)
	assert.Equal(t, 1, w.count())

	stored, err := store.GetAs[domain.WorkPackage](context.Background(), s, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseErection, stored.Phase)
}

func TestExecuteRejectsUnversionedWorkPackage(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseErection)
	_, err := s.Update(context.Background(), store.WorkPackages, wp.ID, store.Fields{"name": "renamed"}, wp.Version)
	require.NoError(t, err)
	w := &spyWriter{inner: s}

	unversioned := wp
	unversioned.Version = 0
	got, trace, err := newExecutor(t, s, nil).Execute(context.Background(), w, unversioned, domain.PhaseCloseout, engine.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConfiguration))
	assert.Equal(t, unversioned, got)
	assert.Empty(t, trace.ID)
	assert.Equal(t, 0, w.count())

	stored, err := store.GetAs[domain.WorkPackage](context.Background(), s, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseErection, stored.Phase)
	assert.Equal(t, "renamed", stored.Name)
}

func TestExecuteRequiresWriter(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseErection)
	_, _, err := newExecutor(t, s, nil).Execute(context.Background(), nil, wp, domain.PhaseCloseout, engine.DefaultOptions())
	assert.True(t, errors.Is(err, engine.ErrConfiguration))
}

func TestExecuteCanceledMidEvaluationDoesNotWrite(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseDetailing)
	spy := newSpy(s)
	spy.delay[store.RFIs] = 5 * time.Second
	w := &spyWriter{inner: s}
	audit := &memAuditor{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, trace, err := newExecutor(t, spy, audit).Execute(ctx, w, wp, domain.PhaseFabrication, engine.DefaultOptions())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.TransitionTrace{}, trace)
	assert.Zero(t, w.count())
	assert.Empty(t, audit.events)
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseCloseout)
	audit := &memAuditor{err: errors.New("disk full")}

	got, _, err := newExecutor(t, s, audit).Execute(context.Background(), s, wp, domain.PhaseCompleted, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, got.Phase)
	assert.Len(t, audit.events, 1)
}
