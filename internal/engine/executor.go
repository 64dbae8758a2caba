package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phasegate/internal/domain"
	"phasegate/internal/store"
	"phasegate/internal/telemetry"
)

// Event types written for executed evaluations.
const (
	EventTransitionApplied = "transition.applied"
	EventTransitionBlocked = "transition.blocked"
)

// Auditor records the outcome of every Execute call that produced a trace.
type Auditor interface {
	RecordTransition(ctx context.Context, ev domain.TransitionEvent) error
}

// Executor persists passing transitions. It is the only component that
// writes WorkPackage.Phase.
type Executor struct {
	Evaluator *Evaluator
	Auditor   Auditor
	Log       *zap.Logger
	Now       func() time.Time
}

func (x Executor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

func (x Executor) log() *zap.Logger {
	if x.Log != nil {
		return x.Log
	}
	return zap.NewNop()
}

// Execute evaluates wp -> target and, when the trace passes, writes the new
// phase with one version-checked update through w. A blocked transition
// returns wp unchanged with a nil error. A lost version race is a
// *ConcurrentModificationError; the caller must re-read and retry.
func (x Executor) Execute(ctx context.Context, w store.Writer, wp domain.WorkPackage, target domain.Phase, opts Options) (domain.WorkPackage, domain.TransitionTrace, error) {
	edge := domain.Edge{From: wp.Phase, To: target}
	if w == nil {
		return wp, domain.TransitionTrace{}, &ConfigurationError{Edge: edge, Msg: "write capability required"}
	}
	if x.Evaluator == nil {
		return wp, domain.TransitionTrace{}, &ConfigurationError{Edge: edge, Msg: "evaluator required"}
	}
	// Stores treat version 0 as "no check"; a stored work package is never at 0.
	if wp.Version <= 0 {
		return wp, domain.TransitionTrace{}, &ConfigurationError{
			Edge: edge,
			Msg:  fmt.Sprintf("work package %s has no stored version; load it from the store", wp.ID),
		}
	}
	trace, err := x.Evaluator.Evaluate(ctx, wp, target, opts)
	if err != nil {
		return wp, domain.TransitionTrace{}, err
	}
	if !trace.Pass {
		telemetry.RecordTransition(ctx, edge.String(), telemetry.OutcomeBlocked)
		x.audit(ctx, EventTransitionBlocked, wp, trace)
		return wp, trace, nil
	}

	updatedAt := x.now().UTC().Format(time.RFC3339)
	rec, err := w.Update(ctx, store.WorkPackages, wp.ID, store.Fields{
		"phase":      string(target),
		"updated_at": updatedAt,
	}, wp.Version)
	switch {
	case errors.Is(err, store.ErrConflict):
		telemetry.RecordTransition(ctx, edge.String(), telemetry.OutcomeConflict)
		return wp, trace, &ConcurrentModificationError{WorkPackageID: wp.ID, Version: wp.Version, Err: err}
	case err != nil:
		telemetry.RecordTransition(ctx, edge.String(), telemetry.OutcomeError)
		return wp, trace, fmt.Errorf("update work package %s: %w", wp.ID, err)
	}
	updated, err := store.Decode[domain.WorkPackage](rec)
	if err != nil {
		return wp, trace, err
	}
	telemetry.RecordTransition(ctx, edge.String(), telemetry.OutcomeApplied)
	x.log().Info("transition applied",
		zap.String("work_package_id", wp.ID),
		zap.String("edge", edge.String()),
		zap.Int64("version", updated.Version),
		zap.String("actor_id", ActorFrom(ctx)))
	x.audit(ctx, EventTransitionApplied, updated, trace)
	return updated, trace, nil
}

func (x Executor) audit(ctx context.Context, typ string, wp domain.WorkPackage, trace domain.TransitionTrace) {
	if x.Auditor == nil {
		return
	}
	ev := domain.TransitionEvent{
		TS:            x.now().UTC().Format(time.RFC3339),
		Type:          typ,
		ProjectID:     wp.ProjectID,
		WorkPackageID: wp.ID,
		ActorID:       ActorFrom(ctx),
		Trace:         trace,
	}
	if err := x.Auditor.RecordTransition(ctx, ev); err != nil {
		x.log().Warn("audit write failed", zap.String("work_package_id", wp.ID), zap.String("type", typ), zap.Error(err))
	}
}

type actorKey struct{}

// WithActor attaches the acting principal to ctx for audit records.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor set by WithActor, or "system".
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}
