package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phasegate/internal/domain"
	"phasegate/internal/store"
	"phasegate/internal/telemetry"
)

// ReasonIllegalTransition is the single reason given for an edge the graph
// does not define.
const ReasonIllegalTransition = "illegal transition"

// Evaluator decides whether a work package may move to a target phase. It
// never writes.
type Evaluator struct {
	reader   store.Reader
	graph    Graph
	registry Registry
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

type EvaluatorOption func(*Evaluator)

func WithGraph(g Graph) EvaluatorOption { return func(e *Evaluator) { e.graph = g } }

func WithRegistry(r Registry) EvaluatorOption { return func(e *Evaluator) { e.registry = r } }

func WithRules(r Rules) EvaluatorOption {
	return func(e *Evaluator) { e.registry = DefaultRegistry(r) }
}

// WithTimeout bounds each evaluation; zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) EvaluatorOption { return func(e *Evaluator) { e.timeout = d } }

func WithLogger(l *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator rejects a cyclic graph and checks that every legal edge has a
// gate, returning a *ConfigurationError for the first defect found.
func NewEvaluator(r store.Reader, opts ...EvaluatorOption) (*Evaluator, error) {
	e := &Evaluator{
		reader:   r,
		graph:    DefaultGraph(),
		registry: DefaultRegistry(DefaultRules()),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if r == nil {
		return nil, &ConfigurationError{Msg: "record store reader is required"}
	}
	if err := e.graph.Validate(); err != nil {
		e.log.Error("lifecycle graph rejected", zap.Error(err))
		return nil, err
	}
	for _, edge := range e.graph.Edges() {
		if _, ok := e.registry[edge]; !ok {
			return nil, &ConfigurationError{Edge: edge, Msg: "no gate registered"}
		}
	}
	return e, nil
}

func (e *Evaluator) Graph() Graph { return e.graph }

// Evaluate builds the transition trace for wp -> target. A blocked transition
// is a trace with Pass false, not an error. Errors are reserved for
// configuration defects, store failures and cancellation; no trace is
// returned with them.
func (e *Evaluator) Evaluate(ctx context.Context, wp domain.WorkPackage, target domain.Phase, opts Options) (domain.TransitionTrace, error) {
	start := time.Now()
	edge := domain.Edge{From: wp.Phase, To: target}
	if err := ctx.Err(); err != nil {
		return domain.TransitionTrace{}, fmt.Errorf("evaluate %s: %w", edge, err)
	}
	trace := e.newTrace(wp, target)
	if !e.graph.CanTransition(wp.Phase, target) {
		trace.Reasons = []string{ReasonIllegalTransition}
		trace.Actions = []string{e.illegalAction(wp.Phase)}
		e.finish(ctx, trace, telemetry.OutcomeIllegal, start)
		return trace, nil
	}
	trace.EdgeLegal = true
	gate, ok := e.registry[edge]
	if !ok {
		err := &ConfigurationError{Edge: edge, Msg: "no gate registered"}
		e.log.Error("gate lookup failed", zap.String("work_package_id", wp.ID), zap.Error(err))
		telemetry.RecordEvaluation(ctx, edge.String(), telemetry.OutcomeError, time.Since(start))
		return domain.TransitionTrace{}, err
	}

	evalCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	res, err := gate.Evaluate(evalCtx, e.reader, wp, opts)
	if err != nil {
		telemetry.RecordEvaluation(ctx, edge.String(), telemetry.OutcomeError, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.TransitionTrace{}, fmt.Errorf("evaluate %s: %w", edge, ctxErr)
		}
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) {
			telemetry.RecordDependencyError(ctx, edge.String(), evalErr.Check)
		}
		e.log.Warn("gate evaluation failed",
			zap.String("work_package_id", wp.ID), zap.String("edge", edge.String()), zap.Error(err))
		return domain.TransitionTrace{}, err
	}
	trace.Gates = []domain.GateResult{res}
	trace.Reasons = append(trace.Reasons, res.Reasons...)
	trace.Actions = append(trace.Actions, res.Actions...)
	trace.Pass = res.Pass
	outcome := telemetry.OutcomeBlocked
	if trace.Pass {
		outcome = telemetry.OutcomePassed
	}
	e.finish(ctx, trace, outcome, start)
	return trace, nil
}

// Readiness evaluates every successor of wp's current phase. A terminal
// phase yields no traces.
func (e *Evaluator) Readiness(ctx context.Context, wp domain.WorkPackage, opts Options) ([]domain.TransitionTrace, error) {
	next := e.graph.NextPhases(wp.Phase)
	out := make([]domain.TransitionTrace, 0, len(next))
	for _, target := range next {
		tr, err := e.Evaluate(ctx, wp, target, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

func (e *Evaluator) newTrace(wp domain.WorkPackage, target domain.Phase) domain.TransitionTrace {
	ts := e.now().UTC().Format(time.RFC3339Nano)
	edge := domain.Edge{From: wp.Phase, To: target}
	return domain.TransitionTrace{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(wp.ID+"|"+edge.String()+"|"+ts)).String(),
		WorkPackageID: wp.ID,
		From:          wp.Phase,
		To:            target,
		EvaluatedAt:   ts,
		Gates:         []domain.GateResult{},
		Reasons:       []string{},
		Actions:       []string{},
	}
}

func (e *Evaluator) illegalAction(from domain.Phase) string {
	next := e.graph.NextPhases(from)
	if len(next) == 0 {
		return fmt.Sprintf("Phase %s is terminal", from)
	}
	return fmt.Sprintf("Advance to %s instead", next[0])
}

func (e *Evaluator) finish(ctx context.Context, trace domain.TransitionTrace, outcome string, start time.Time) {
	telemetry.RecordEvaluation(ctx, trace.Edge().String(), outcome, time.Since(start))
	if ce := e.log.Check(zap.DebugLevel, "transition evaluated"); ce != nil {
		ce.Write(
			zap.String("trace_id", trace.ID),
			zap.String("work_package_id", trace.WorkPackageID),
			zap.String("edge", trace.Edge().String()),
			zap.Bool("pass", trace.Pass),
			zap.Strings("reasons", trace.Reasons),
		)
	}
}
