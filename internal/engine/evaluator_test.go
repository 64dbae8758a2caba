package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/store"
)

func newEvaluator(t *testing.T, r store.Reader, opts ...engine.EvaluatorOption) *engine.Evaluator {
	t.Helper()
	base := []engine.EvaluatorOption{engine.WithClock(fixedNow), engine.WithLogger(zaptest.NewLogger(t))}
	ev, err := engine.NewEvaluator(r, append(base, opts...)...)
	require.NoError(t, err)
	return ev
}

func TestNewEvaluatorRejectsIncompleteRegistry(t *testing.T) {
	reg := engine.DefaultRegistry(engine.DefaultRules())
	delete(reg, domain.Edge{From: domain.PhaseErection, To: domain.PhaseCloseout})
	_, err := engine.NewEvaluator(newFixture(t), engine.WithRegistry(reg))
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConfiguration))
	assert.Contains(t, err.Error(), "erection->closeout")
}

func TestIllegalEdgeInvokesNoGate(t *testing.T) {
	s := newFixture(t)
	for _, from := range domain.Phases {
		for _, to := range domain.Phases {
			if engine.CanTransition(from, to) {
				continue
			}
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				spy := newSpy(s)
				ev := newEvaluator(t, spy)
				trace, err := ev.Evaluate(context.Background(), domain.WorkPackage{ID: "wp1", Phase: from}, to, engine.DefaultOptions())
				require.NoError(t, err)
				assert.False(t, trace.Pass)
				assert.False(t, trace.EdgeLegal)
				assert.Equal(t, []string{engine.ReasonIllegalTransition}, trace.Reasons)
				assert.Len(t, trace.Actions, 1)
				assert.Empty(t, trace.Gates)
				assert.Zero(t, spy.total())
			})
		}
	}
}

func TestSatisfiedFixturesPassEveryEdge(t *testing.T) {
	for _, edge := range engine.DefaultGraph().Edges() {
		t.Run(edge.String(), func(t *testing.T) {
			s := newFixture(t)
			wp := seedSatisfied(t, s, edge.From)
			trace, err := newEvaluator(t, s).Evaluate(context.Background(), wp, edge.To, engine.DefaultOptions())
			require.NoError(t, err)
			assert.True(t, trace.Pass, "reasons: %v", trace.Reasons)
			assert.True(t, trace.EdgeLegal)
			assert.Empty(t, trace.Reasons)
			assert.Empty(t, trace.Actions)
			require.Len(t, trace.Gates, 1)
			assert.Equal(t, edge.String(), trace.Gates[0].Gate)
		})
	}
}

func TestDetailingWithoutDrawingsIsBlocked(t *testing.T) {
	s := newFixture(t)
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDetailing})

	trace, err := newEvaluator(t, s).Evaluate(context.Background(), wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, trace.Pass)
	assert.Contains(t, trace.Reasons, "No drawings linked to work package")
	assert.Equal(t, len(trace.Reasons), len(trace.Actions))
}

func TestUnreleasedDrawingsAndRFIsAreListed(t *testing.T) {
	s := newFixture(t)
	for _, d := range []domain.DrawingSet{
		{ID: "d3", ProjectID: "p1", Number: "S-103", Status: domain.DrawingIssuedForApproval},
		{ID: "d1", ProjectID: "p1", Number: "S-101", Status: domain.DrawingBackFromApproval},
		{ID: "d2", ProjectID: "p1", Number: "S-102", Status: domain.DrawingIssuedForApproval},
		{ID: "d4", ProjectID: "p1", Number: "S-104", Status: domain.DrawingFinalForFab},
	} {
		put(t, s, store.DrawingSets, d)
	}
	put(t, s, store.RFIs, domain.RFI{ID: "r1", ProjectID: "p1", ReleaseGroup: "RG-1", Number: "RFI-7", Status: domain.RFIPendingResponse, FabricationBlocking: true})
	put(t, s, store.RFIs, domain.RFI{ID: "r2", ProjectID: "p1", ReleaseGroup: "RG-2", Number: "RFI-8", Status: domain.RFIOpen, FabricationBlocking: true})
	put(t, s, store.RFIs, domain.RFI{ID: "r3", ProjectID: "p1", ReleaseGroup: "RG-1", Number: "RFI-9", Status: domain.RFIOpen})
	wp := seedWorkPackage(t, s, domain.WorkPackage{
		ID: "wp1", Phase: domain.PhaseDetailing, ReleaseGroup: "RG-1",
		DrawingSetIDs: []string{"d3", "d1", "d2", "d4", "d9"},
	})

	trace, err := newEvaluator(t, s).Evaluate(context.Background(), wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1 linked drawings not found: d9",
		"3 drawings not released: S-101, S-102, S-103",
		"1 open fabrication-blocking RFIs: RFI-7",
	}, trace.Reasons)
	assert.Len(t, trace.Actions, 3)
}

func TestListedIdentifiersAreCapped(t *testing.T) {
	s := newFixture(t)
	var ids []string
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("d%02d", i)
		put(t, s, store.DrawingSets, domain.DrawingSet{ID: id, ProjectID: "p1", Number: fmt.Sprintf("S-%03d", i), Status: domain.DrawingIssuedForApproval})
		ids = append(ids, id)
	}
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDetailing, DrawingSetIDs: ids})
	rules := engine.DefaultRules()
	rules.MaxListedIDs = 3

	trace, err := newEvaluator(t, s, engine.WithRules(rules)).Evaluate(context.Background(), wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, trace.Reasons, 1)
	assert.Equal(t, "12 drawings not released: S-001, S-002, S-003 (+9 more)", trace.Reasons[0])
}

func TestOpenPunchItemBlocksCloseout(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.FieldInstalls, domain.FieldInstall{ID: "fi1", WorkPackageID: "wp1", Mark: "C1", Status: "complete"})
	put(t, s, store.FieldInstalls, domain.FieldInstall{ID: "fi2", WorkPackageID: "wp1", Mark: "B4", Status: "complete"})
	put(t, s, store.PunchItems, domain.PunchItem{ID: "pi1", WorkPackageID: "wp1", Number: "P-12", Status: "open"})
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseErection})

	trace, err := newEvaluator(t, s).Evaluate(context.Background(), wp, domain.PhaseCloseout, engine.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, trace.Pass)
	require.Len(t, trace.Reasons, 1)
	assert.True(t, strings.HasPrefix(trace.Reasons[0], "1 open punch items"), trace.Reasons[0])
}

func TestProjectChecks(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.Projects, domain.Project{ID: "p2", Name: "Annex", Status: domain.ProjectOnHold})
	ev := newEvaluator(t, s)
	ctx := context.Background()

	trace, err := ev.Evaluate(ctx, domain.WorkPackage{ID: "a", ProjectID: "p2", Phase: domain.PhasePlanning}, domain.PhaseDetailing, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Scope description is empty", "Project p2 is on hold"}, trace.Reasons)

	trace, err = ev.Evaluate(ctx, domain.WorkPackage{ID: "b", ProjectID: "nope", Phase: domain.PhasePlanning, ScopeDescription: "x"}, domain.PhaseDetailing, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Project nope not found"}, trace.Reasons)
}

func TestDeliveryChecks(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.Deliveries, domain.Delivery{ID: "del1", WorkPackageID: "wp1", Number: "D-1", Status: "received"})
	put(t, s, store.Deliveries, domain.Delivery{ID: "del2", WorkPackageID: "wp1", Number: "D-2", Status: "in_transit"})
	put(t, s, store.ErectionReadiness, domain.ErectionReadiness{ID: "er1", WorkPackageID: "wp1", SiteReady: true, EquipmentReady: false})
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDelivery})
	ev := newEvaluator(t, s)

	trace, err := ev.Evaluate(context.Background(), wp, domain.PhaseErection, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Equipment not ready for erection"}, trace.Reasons)

	opts := engine.DefaultOptions()
	opts.CheckMaterialAvailability = true
	trace, err = ev.Evaluate(context.Background(), wp, domain.PhaseErection, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 deliveries not received: D-2", "Equipment not ready for erection"}, trace.Reasons)
}

func TestCloseoutOptions(t *testing.T) {
	s := newFixture(t)
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseCloseout})
	put(t, s, store.Documents, domain.Document{ID: "doc1", WorkPackageID: "wp1", Title: "Shop drawings", Tags: []string{"fabrication"}})
	ev := newEvaluator(t, s)

	trace, err := ev.Evaluate(context.Background(), wp, domain.PhaseCompleted, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"No closeout documents attached",
		"Final inspection not passed",
		"Client acceptance not recorded",
	}, trace.Reasons)

	trace, err = ev.Evaluate(context.Background(), wp, domain.PhaseCompleted, engine.Options{})
	require.NoError(t, err)
	assert.True(t, trace.Pass)
}

func TestReasonOrderIgnoresLatency(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.ErectionReadiness, domain.ErectionReadiness{ID: "er1", WorkPackageID: "wp1"})
	put(t, s, store.Constraints, domain.Constraint{ID: "c1", ProjectID: "p1", WorkPackageID: "wp1", Status: "active", ExecutionBlocking: true})
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseDelivery})
	want := []string{
		"No deliveries scheduled for work package",
		"Site not ready for erection",
		"Equipment not ready for erection",
		"1 active execution-blocking constraints: c1",
	}

	for _, slow := range []store.Collection{store.Deliveries, store.ErectionReadiness, store.Constraints} {
		t.Run(string(slow), func(t *testing.T) {
			spy := newSpy(s)
			spy.delay[slow] = 30 * time.Millisecond
			trace, err := newEvaluator(t, spy).Evaluate(context.Background(), wp, domain.PhaseErection, engine.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, want, trace.Reasons)
			assert.Len(t, trace.Actions, len(want))
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	s := newFixture(t)
	put(t, s, store.FieldInstalls, domain.FieldInstall{ID: "fi1", WorkPackageID: "wp1", Mark: "C1", Status: "in_progress"})
	put(t, s, store.PunchItems, domain.PunchItem{ID: "pi1", WorkPackageID: "wp1", Number: "P-1", Status: "open"})
	put(t, s, store.PunchItems, domain.PunchItem{ID: "pi2", WorkPackageID: "wp1", Number: "P-2", Status: "in_progress"})
	wp := seedWorkPackage(t, s, domain.WorkPackage{ID: "wp1", Phase: domain.PhaseErection})
	ev := newEvaluator(t, s)

	first, err := ev.Evaluate(context.Background(), wp, domain.PhaseCloseout, engine.DefaultOptions())
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), wp, domain.PhaseCloseout, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"1 field installs not complete: C1", "2 open punch items: P-1, P-2"}, first.Reasons)

	got, err := store.GetAs[domain.WorkPackage](context.Background(), s, store.WorkPackages, "wp1")
	require.NoError(t, err)
	assert.Equal(t, wp, got)
}

func TestCancellationDiscardsTrace(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseDetailing)
	spy := newSpy(s)
	spy.delay[store.DrawingSets] = 5 * time.Second
	ev := newEvaluator(t, spy)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	trace, err := ev.Evaluate(ctx, wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, engine.ErrDependency))
	assert.Equal(t, domain.TransitionTrace{}, trace)
}

func TestEvaluateOnCanceledContext(t *testing.T) {
	spy := newSpy(newFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEvaluator(t, spy).Evaluate(ctx, domain.WorkPackage{ID: "wp1", Phase: domain.PhasePlanning}, domain.PhaseDetailing, engine.DefaultOptions())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, spy.total())
}

func TestStoreFailureIsDependencyError(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseDetailing)
	spy := newSpy(s)
	boom := errors.New("connection reset")
	spy.fail[store.RFIs] = boom

	trace, err := newEvaluator(t, spy).Evaluate(context.Background(), wp, domain.PhaseFabrication, engine.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrDependency))
	assert.True(t, errors.Is(err, boom))
	var evalErr *engine.EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "detailing->fabrication", evalErr.Gate)
	assert.Equal(t, "rfis", evalErr.Check)
	assert.Equal(t, domain.TransitionTrace{}, trace)
}

func TestEvaluationTimeoutIsDependencyError(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseFabrication)
	spy := newSpy(s)
	spy.delay[store.QCChecklists] = 5 * time.Second

	_, err := newEvaluator(t, spy, engine.WithTimeout(20*time.Millisecond)).
		Evaluate(context.Background(), wp, domain.PhaseDelivery, engine.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrDependency))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReadiness(t *testing.T) {
	s := newFixture(t)
	wp := seedSatisfied(t, s, domain.PhaseErection)
	ev := newEvaluator(t, s)

	traces, err := ev.Readiness(context.Background(), wp, engine.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, domain.PhaseCloseout, traces[0].To)
	assert.True(t, traces[0].Pass)

	wp.Phase = domain.PhaseCompleted
	traces, err = ev.Readiness(context.Background(), wp, engine.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, traces)
}
