package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"phasegate/internal/domain"
	"phasegate/internal/store"
	"phasegate/internal/store/memstore"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

// spyReader counts store reads and can delay or fail them per collection.
type spyReader struct {
	inner store.Reader

	mu    sync.Mutex
	calls map[store.Collection]int
	delay map[store.Collection]time.Duration
	fail  map[store.Collection]error
}

func newSpy(inner store.Reader) *spyReader {
	return &spyReader{
		inner: inner,
		calls: map[store.Collection]int{},
		delay: map[store.Collection]time.Duration{},
		fail:  map[store.Collection]error{},
	}
}

func (s *spyReader) before(ctx context.Context, c store.Collection) error {
	s.mu.Lock()
	s.calls[c]++
	d, err := s.delay[c], s.fail[c]
	s.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *spyReader) Filter(ctx context.Context, c store.Collection, crit store.Criteria) ([]store.Record, error) {
	if err := s.before(ctx, c); err != nil {
		return nil, err
	}
	return s.inner.Filter(ctx, c, crit)
}

func (s *spyReader) Get(ctx context.Context, c store.Collection, id string) (store.Record, error) {
	if err := s.before(ctx, c); err != nil {
		return store.Record{}, err
	}
	return s.inner.Get(ctx, c, id)
}

func (s *spyReader) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// spyWriter counts updates before delegating.
type spyWriter struct {
	inner   store.Writer
	mu      sync.Mutex
	updates int
}

func (w *spyWriter) Update(ctx context.Context, c store.Collection, id string, fields store.Fields, expectedVersion int64) (store.Record, error) {
	w.mu.Lock()
	w.updates++
	w.mu.Unlock()
	return w.inner.Update(ctx, c, id, fields, expectedVersion)
}

func (w *spyWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updates
}

func put[T any](t *testing.T, s store.Store, c store.Collection, v T) T {
	t.Helper()
	out, err := store.Put(context.Background(), s, c, v)
	require.NoError(t, err)
	return out
}

// newFixture seeds an active project p1 and returns the store.
func newFixture(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	put(t, s, store.Projects, domain.Project{ID: "p1", Name: "Tower", Status: domain.ProjectActive})
	return s
}

func seedWorkPackage(t *testing.T, s store.Store, wp domain.WorkPackage) domain.WorkPackage {
	t.Helper()
	if wp.ProjectID == "" {
		wp.ProjectID = "p1"
	}
	if wp.Name == "" {
		wp.Name = "Level 2 framing"
	}
	return put(t, s, store.WorkPackages, wp)
}

// seedSatisfied stores records that satisfy every check guarding the edge
// leaving from, and returns the work package placed in from.
func seedSatisfied(t *testing.T, s store.Store, from domain.Phase) domain.WorkPackage {
	t.Helper()
	wp := domain.WorkPackage{ID: "wp1", Phase: from, ScopeDescription: "Columns and beams, gridlines A-F"}
	switch from {
	case domain.PhaseDetailing:
		put(t, s, store.DrawingSets, domain.DrawingSet{ID: "d1", ProjectID: "p1", Number: "S-101", Status: domain.DrawingFinalForFab})
		wp.DrawingSetIDs = []string{"d1"}
		put(t, s, store.RFIs, domain.RFI{ID: "r1", ProjectID: "p1", WorkPackageID: "wp1", Number: "RFI-1", Status: domain.RFIClosed, FabricationBlocking: true})
	case domain.PhaseFabrication:
		put(t, s, store.FabricationPackages, domain.FabricationPackage{ID: "f1", WorkPackageID: "wp1", Number: "FP-1", Status: "complete"})
		put(t, s, store.QCChecklists, domain.QCChecklist{ID: "q1", WorkPackageID: "wp1", Name: "Welds", Status: "approved"})
	case domain.PhaseDelivery:
		put(t, s, store.Deliveries, domain.Delivery{ID: "del1", WorkPackageID: "wp1", Number: "D-1", Status: "received"})
		put(t, s, store.ErectionReadiness, domain.ErectionReadiness{ID: "er1", WorkPackageID: "wp1", SiteReady: true, EquipmentReady: true})
		put(t, s, store.Constraints, domain.Constraint{ID: "c1", ProjectID: "p1", WorkPackageID: "wp1", Status: "resolved", ExecutionBlocking: true})
	case domain.PhaseErection:
		put(t, s, store.FieldInstalls, domain.FieldInstall{ID: "fi1", WorkPackageID: "wp1", Mark: "C1", Status: "complete"})
		put(t, s, store.PunchItems, domain.PunchItem{ID: "pi1", WorkPackageID: "wp1", Number: "P-1", Status: "completed"})
	case domain.PhaseCloseout:
		put(t, s, store.Documents, domain.Document{ID: "doc1", WorkPackageID: "wp1", Title: "As-built set", Tags: []string{"as-built", domain.TagCloseout}})
		wp.FinalInspectionPassed = true
		wp.ClientAccepted = true
	}
	return seedWorkPackage(t, s, wp)
}
