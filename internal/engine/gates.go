package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"phasegate/internal/domain"
	"phasegate/internal/store"
)

// Finding is one blocking reason and the action that clears it.
type Finding struct {
	Reason string
	Action string
}

// Check is one independent sub-query of a gate. It returns nothing when the
// rule is satisfied.
type Check struct {
	Name string
	Run  func(ctx context.Context, r store.Reader, wp domain.WorkPackage, opts Options) ([]Finding, error)
}

// Gate is the readiness rule for one edge: an ordered list of checks.
type Gate struct {
	Edge   domain.Edge
	Checks []Check
}

// Evaluate runs every check concurrently and merges findings in declaration
// order, so arrival order never leaks into the result. Any store failure
// discards all findings and is returned as an *EvaluationError.
func (g Gate) Evaluate(ctx context.Context, r store.Reader, wp domain.WorkPackage, opts Options) (domain.GateResult, error) {
	slots := make([][]Finding, len(g.Checks))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range g.Checks {
		eg.Go(func() error {
			found, err := c.Run(egCtx, r, wp, opts)
			if err != nil {
				return &EvaluationError{Gate: g.Edge.String(), Check: c.Name, Err: err}
			}
			slots[i] = found
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.GateResult{}, err
	}
	res := domain.GateResult{Gate: g.Edge.String(), Reasons: []string{}, Actions: []string{}}
	for _, found := range slots {
		for _, f := range found {
			res.Reasons = append(res.Reasons, f.Reason)
			res.Actions = append(res.Actions, f.Action)
		}
	}
	res.Pass = len(res.Reasons) == 0
	return res, nil
}

// Registry maps each legal edge to its gate.
type Registry map[domain.Edge]Gate

// DefaultRegistry wires the built-in gates for the default graph.
func DefaultRegistry(rules Rules) Registry {
	c := checks{rules: rules}
	gates := []Gate{
		{Edge: domain.Edge{From: domain.PhasePlanning, To: domain.PhaseDetailing}, Checks: []Check{
			{Name: "scope", Run: c.scopeDefined},
			{Name: "project", Run: c.projectActive},
		}},
		{Edge: domain.Edge{From: domain.PhaseDetailing, To: domain.PhaseFabrication}, Checks: []Check{
			{Name: "drawings", Run: c.drawingsReleased},
			{Name: "rfis", Run: c.noBlockingRFIs},
		}},
		{Edge: domain.Edge{From: domain.PhaseFabrication, To: domain.PhaseDelivery}, Checks: []Check{
			{Name: "fabrication_packages", Run: c.fabricationComplete},
			{Name: "qc_checklists", Run: c.qcApproved},
		}},
		{Edge: domain.Edge{From: domain.PhaseDelivery, To: domain.PhaseErection}, Checks: []Check{
			{Name: "deliveries", Run: c.materialDelivered},
			{Name: "erection_readiness", Run: c.siteReady},
			{Name: "constraints", Run: c.noBlockingConstraints},
		}},
		{Edge: domain.Edge{From: domain.PhaseErection, To: domain.PhaseCloseout}, Checks: []Check{
			{Name: "field_installs", Run: c.installsComplete},
			{Name: "punch_items", Run: c.punchListClear},
		}},
		{Edge: domain.Edge{From: domain.PhaseCloseout, To: domain.PhaseCompleted}, Checks: []Check{
			{Name: "closeout_documents", Run: c.closeoutDocuments},
			{Name: "final_inspection", Run: c.finalInspection},
			{Name: "client_acceptance", Run: c.clientAcceptance},
		}},
	}
	reg := make(Registry, len(gates))
	for _, g := range gates {
		reg[g.Edge] = g
	}
	return reg
}
