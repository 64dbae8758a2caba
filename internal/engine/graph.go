package engine

import (
	"fmt"
	"sort"

	"phasegate/internal/domain"
)

// Graph is the forward-only successor map of the lifecycle. It is immutable
// after construction and safe for concurrent use.
type Graph struct {
	next map[domain.Phase]domain.Phase
}

var defaultGraph = func() Graph {
	next := make(map[domain.Phase]domain.Phase, len(domain.Phases)-1)
	for i := 0; i+1 < len(domain.Phases); i++ {
		next[domain.Phases[i]] = domain.Phases[i+1]
	}
	return Graph{next: next}
}()

// DefaultGraph returns the linear chain planning -> ... -> completed.
func DefaultGraph() Graph { return defaultGraph }

// NewGraph builds a graph from an explicit successor map. The map is copied.
func NewGraph(next map[domain.Phase]domain.Phase) Graph {
	cp := make(map[domain.Phase]domain.Phase, len(next))
	for k, v := range next {
		cp[k] = v
	}
	return Graph{next: cp}
}

// CanTransition reports whether target is the defined successor of current.
func (g Graph) CanTransition(current, target domain.Phase) bool {
	next, ok := g.next[current]
	return ok && next == target
}

// NextPhases returns the successors of current: one phase, or none for a
// terminal phase.
func (g Graph) NextPhases(current domain.Phase) []domain.Phase {
	next, ok := g.next[current]
	if !ok {
		return []domain.Phase{}
	}
	return []domain.Phase{next}
}

// Edges lists every legal edge in phase order.
func (g Graph) Edges() []domain.Edge {
	out := make([]domain.Edge, 0, len(g.next))
	seen := map[domain.Phase]bool{}
	for _, p := range domain.Phases {
		if to, ok := g.next[p]; ok {
			out = append(out, domain.Edge{From: p, To: to})
			seen[p] = true
		}
	}
	// Custom graphs may name phases outside the canonical list.
	var extra []domain.Edge
	for from, to := range g.next {
		if !seen[from] {
			extra = append(extra, domain.Edge{From: from, To: to})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].From < extra[j].From })
	return append(out, extra...)
}

// Validate walks forward from every phase and returns a *ConfigurationError
// wrapping ErrGraphCycle for the first walk that revisits a phase.
func (g Graph) Validate() error {
	for _, start := range g.Edges() {
		seen := map[domain.Phase]bool{start.From: true}
		cur := start.To
		for {
			if seen[cur] {
				return &ConfigurationError{
					Edge: domain.Edge{From: start.From, To: cur},
					Msg:  fmt.Sprintf("cycle returns to %s", cur),
					Err:  ErrGraphCycle,
				}
			}
			seen[cur] = true
			next, ok := g.next[cur]
			if !ok {
				break
			}
			cur = next
		}
	}
	return nil
}

func (g Graph) hopBound() int {
	n := len(domain.Phases)
	if len(g.next) > n {
		n = len(g.next)
	}
	return n + 1
}

// Path walks successors from from to to and returns every phase visited,
// both ends included. Exceeding the hop bound means the graph has a cycle and
// is reported as a ConfigurationError wrapping ErrGraphCycle.
func (g Graph) Path(from, to domain.Phase) ([]domain.Phase, error) {
	path := []domain.Phase{from}
	cur := from
	for hops := 0; cur != to; hops++ {
		if hops >= g.hopBound() {
			return nil, &ConfigurationError{
				Edge: domain.Edge{From: from, To: to},
				Msg:  fmt.Sprintf("no arrival after %d hops", hops),
				Err:  ErrGraphCycle,
			}
		}
		next, ok := g.next[cur]
		if !ok {
			return nil, fmt.Errorf("%s from %s: %w", to, from, ErrUnreachable)
		}
		path = append(path, next)
		cur = next
	}
	return path, nil
}

// PathBetween is Path without the error detail: an unreachable target and a
// cyclic graph both report false. Callers that must treat a cycle as fatal use
// Path, or reject the graph up front with Validate.
func (g Graph) PathBetween(from, to domain.Phase) ([]domain.Phase, bool) {
	path, err := g.Path(from, to)
	if err != nil {
		return nil, false
	}
	return path, true
}

func CanTransition(current, target domain.Phase) bool {
	return defaultGraph.CanTransition(current, target)
}

func NextPhases(current domain.Phase) []domain.Phase {
	return defaultGraph.NextPhases(current)
}

func PathBetween(from, to domain.Phase) ([]domain.Phase, bool) {
	return defaultGraph.PathBetween(from, to)
}
