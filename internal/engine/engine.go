package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phasegate/internal/config"
	"phasegate/internal/domain"
	"phasegate/internal/store"
)

// Engine bundles the evaluator and executor over one record store with the
// setup operations the CLI and server need.
type Engine struct {
	Store     store.Store
	Config    *config.Config
	Log       *zap.Logger
	Now       func() time.Time
	Evaluator *Evaluator
	Auditor   Auditor
}

// New builds an engine whose evaluator follows cfg. Extra options are applied
// after the configured ones.
func New(st store.Store, cfg *config.Config, log *zap.Logger, opts ...EvaluatorOption) (Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := Engine{Store: st, Config: cfg, Log: log, Now: time.Now}
	base := []EvaluatorOption{
		WithRules(RulesFromConfig(cfg)),
		WithTimeout(timeoutFromConfig(cfg)),
		WithLogger(log.Named("evaluator")),
	}
	ev, err := NewEvaluator(st, append(base, opts...)...)
	if err != nil {
		return Engine{}, err
	}
	e.Evaluator = ev
	return e, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DefaultOptions returns the configured strictness flags.
func (e Engine) DefaultOptions() Options { return OptionsFromConfig(e.Config) }

// InitProject creates an active project.
func (e Engine) InitProject(ctx context.Context, projectID, name string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, errors.New("project id is required")
	}
	p := domain.Project{
		ID:        projectID,
		Name:      name,
		Status:    domain.ProjectActive,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	out, err := store.Put(ctx, e.Store, store.Projects, p)
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return out, nil
}

// WorkPackageCreateOptions are parameters for creating a work package.
type WorkPackageCreateOptions struct {
	ID               string
	ProjectID        string
	Name             string
	ScopeDescription string
	DrawingSetIDs    []string
	ReleaseGroup     string
}

// CreateWorkPackage stores a new work package in the planning phase.
func (e Engine) CreateWorkPackage(ctx context.Context, opts WorkPackageCreateOptions) (domain.WorkPackage, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.WorkPackage{}, errors.New("name is required")
	}
	if opts.ProjectID == "" {
		return domain.WorkPackage{}, errors.New("project is required")
	}
	if _, err := e.Store.Get(ctx, store.Projects, opts.ProjectID); err != nil {
		return domain.WorkPackage{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ProjectID+"|"+opts.Name+"|"+now)).String()
	}
	wp := domain.WorkPackage{
		ID:               id,
		ProjectID:        opts.ProjectID,
		Name:             opts.Name,
		Phase:            domain.PhasePlanning,
		ScopeDescription: opts.ScopeDescription,
		DrawingSetIDs:    opts.DrawingSetIDs,
		ReleaseGroup:     opts.ReleaseGroup,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	out, err := store.Put(ctx, e.Store, store.WorkPackages, wp)
	if err != nil {
		return domain.WorkPackage{}, fmt.Errorf("insert work package: %w", err)
	}
	e.Log.Info("work package created", zap.String("work_package_id", out.ID), zap.String("project_id", out.ProjectID))
	return out, nil
}

func (e Engine) GetWorkPackage(ctx context.Context, id string) (domain.WorkPackage, error) {
	return store.GetAs[domain.WorkPackage](ctx, e.Store, store.WorkPackages, id)
}

// ListWorkPackages returns work packages sorted by id; an empty projectID
// lists all of them.
func (e Engine) ListWorkPackages(ctx context.Context, projectID string) ([]domain.WorkPackage, error) {
	var crit store.Criteria
	if projectID != "" {
		crit = store.Where(store.Eq("project_id", projectID))
	}
	return store.FilterAs[domain.WorkPackage](ctx, e.Store, store.WorkPackages, crit)
}

// AddRecord stores a supporting record. Work packages go through
// CreateWorkPackage so their phase cannot be set directly.
func (e Engine) AddRecord(ctx context.Context, c store.Collection, id string, fields store.Fields) (store.Record, error) {
	fields = store.Clone(fields)
	if fields == nil {
		fields = store.Fields{}
	}
	switch c {
	case store.WorkPackages:
		return store.Record{}, errors.New("work packages are created with CreateWorkPackage")
	case store.Projects:
		if _, ok := fields["status"]; !ok {
			fields = store.Merge(fields, store.Fields{"status": domain.ProjectActive})
		}
	}
	delete(fields, "id")
	delete(fields, "version")
	return e.Store.Create(ctx, c, store.Record{ID: id, Fields: fields})
}

// Evaluate loads the work package and evaluates the move to target.
func (e Engine) Evaluate(ctx context.Context, wpID string, target domain.Phase, opts Options) (domain.TransitionTrace, error) {
	wp, err := e.GetWorkPackage(ctx, wpID)
	if err != nil {
		return domain.TransitionTrace{}, err
	}
	return e.Evaluator.Evaluate(ctx, wp, target, opts)
}

// Readiness evaluates every successor of the work package's phase.
func (e Engine) Readiness(ctx context.Context, wpID string, opts Options) (domain.WorkPackage, []domain.TransitionTrace, error) {
	wp, err := e.GetWorkPackage(ctx, wpID)
	if err != nil {
		return domain.WorkPackage{}, nil, err
	}
	traces, err := e.Evaluator.Readiness(ctx, wp, opts)
	return wp, traces, err
}

// Advance loads the work package and executes the move to target through w.
func (e Engine) Advance(ctx context.Context, w store.Writer, wpID string, target domain.Phase, opts Options) (domain.WorkPackage, domain.TransitionTrace, error) {
	wp, err := e.GetWorkPackage(ctx, wpID)
	if err != nil {
		return domain.WorkPackage{}, domain.TransitionTrace{}, err
	}
	return e.Executor().Execute(ctx, w, wp, target, opts)
}

func (e Engine) Executor() Executor {
	return Executor{Evaluator: e.Evaluator, Auditor: e.Auditor, Log: e.Log.Named("executor"), Now: e.now}
}

func (e Engine) NextPhases(p domain.Phase) []domain.Phase {
	if e.Evaluator == nil {
		return NextPhases(p)
	}
	return e.Evaluator.Graph().NextPhases(p)
}
