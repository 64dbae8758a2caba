// Package store defines the record store contract consumed by the phase-gate
// engine: typed collections of domain records filtered by simple criteria and
// updated under an optimistic version check.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a failed optimistic version check or a duplicate id.
	ErrConflict = errors.New("concurrent modification")
)

// Collection names one typed collection of domain records.
type Collection string

const (
	WorkPackages        Collection = "work_packages"
	Projects            Collection = "projects"
	DrawingSets         Collection = "drawing_sets"
	RFIs                Collection = "rfis"
	FabricationPackages Collection = "fabrication_packages"
	QCChecklists        Collection = "qc_checklists"
	Deliveries          Collection = "deliveries"
	ErectionReadiness   Collection = "erection_readiness"
	Constraints         Collection = "constraints"
	FieldInstalls       Collection = "field_installs"
	PunchItems          Collection = "punch_items"
	Documents           Collection = "documents"
)

var Collections = []Collection{
	WorkPackages, Projects, DrawingSets, RFIs, FabricationPackages, QCChecklists,
	Deliveries, ErectionReadiness, Constraints, FieldInstalls, PunchItems, Documents,
}

func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", s)
}

// Fields is a partial or complete set of record attributes keyed by JSON name.
type Fields map[string]any

// Record is one stored document. Version increments on every update.
type Record struct {
	ID      string
	Version int64
	Fields  Fields
}

// Reader is the query half of the store. Filter must return an empty slice,
// not an error, when nothing matches.
type Reader interface {
	Filter(ctx context.Context, c Collection, crit Criteria) ([]Record, error)
	Get(ctx context.Context, c Collection, id string) (Record, error)
}

// Writer applies a partial update. expectedVersion > 0 enables the optimistic
// check; a mismatch yields ErrConflict and a missing id ErrNotFound.
type Writer interface {
	Update(ctx context.Context, c Collection, id string, fields Fields, expectedVersion int64) (Record, error)
}

// Store is the full record store used by setup code and adapters.
type Store interface {
	Reader
	Writer
	Create(ctx context.Context, c Collection, rec Record) (Record, error)
}

// Merge returns base overlaid with update. Neither input is modified.
func Merge(base, update Fields) Fields {
	out := make(Fields, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Clone copies f deeply enough that callers cannot alias stored slices or maps.
func Clone(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	case map[string]any:
		return map[string]any(Clone(Fields(t)))
	case Fields:
		return Clone(t)
	default:
		return v
	}
}
