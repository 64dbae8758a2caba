package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"phasegate/internal/domain"
	"phasegate/internal/store"
)

type checks struct {
	rules Rules
}

func byWorkPackage(wp domain.WorkPackage) store.Criteria {
	return store.Where(store.Eq("work_package_id", wp.ID))
}

// Planning -> Detailing

func (c checks) scopeDefined(_ context.Context, _ store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	if strings.TrimSpace(wp.ScopeDescription) != "" {
		return nil, nil
	}
	return []Finding{{
		Reason: "Scope description is empty",
		Action: "Write the scope description for the work package",
	}}, nil
}

func (c checks) projectActive(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	if wp.ProjectID == "" {
		return []Finding{{Reason: "Work package has no project", Action: "Assign the work package to a project"}}, nil
	}
	p, err := store.GetAs[domain.Project](ctx, r, store.Projects, wp.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return []Finding{{
			Reason: fmt.Sprintf("Project %s not found", wp.ProjectID),
			Action: "Assign the work package to an existing project",
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status == domain.ProjectOnHold {
		return []Finding{{
			Reason: fmt.Sprintf("Project %s is on hold", p.ID),
			Action: "Take the project off hold",
		}}, nil
	}
	return nil, nil
}

// Detailing -> Fabrication

func (c checks) drawingsReleased(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	if len(wp.DrawingSetIDs) == 0 {
		return []Finding{{
			Reason: "No drawings linked to work package",
			Action: "Link the drawing sets that define the work package",
		}}, nil
	}
	sets, err := store.FilterAs[domain.DrawingSet](ctx, r, store.DrawingSets,
		store.Where(store.In("id", store.Strings(wp.DrawingSetIDs)...)))
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(sets))
	var unreleased []string
	for _, d := range sets {
		found[d.ID] = true
		if !slices.Contains(c.rules.ReleasedDrawingStatuses, d.Status) {
			unreleased = append(unreleased, d.Label())
		}
	}
	var missing []string
	for _, id := range wp.DrawingSetIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	var out []Finding
	if len(missing) > 0 {
		out = append(out, Finding{
			Reason: c.counted(missing, "linked drawings not found"),
			Action: "Unlink or restore the missing drawing sets",
		})
	}
	if len(unreleased) > 0 {
		out = append(out, Finding{
			Reason: c.counted(unreleased, "drawings not released"),
			Action: fmt.Sprintf("Release drawings for fabrication (%s)", strings.Join(c.rules.ReleasedDrawingStatuses, ", ")),
		})
	}
	return out, nil
}

func (c checks) noBlockingRFIs(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	crit := store.Where(
		store.Eq("project_id", wp.ProjectID),
		store.Eq("fabrication_blocking", true),
		store.In("status", store.Strings(c.rules.OpenRFIStatuses)...),
	)
	if wp.ReleaseGroup != "" {
		crit = crit.And(store.Eq("release_group", wp.ReleaseGroup))
	} else {
		crit = crit.And(store.Eq("work_package_id", wp.ID))
	}
	rfis, err := store.FilterAs[domain.RFI](ctx, r, store.RFIs, crit)
	if err != nil {
		return nil, err
	}
	if len(rfis) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(rfis), "open fabrication-blocking RFIs"),
		Action: "Answer or close the fabrication-blocking RFIs",
	}}, nil
}

// Fabrication -> Delivery

func (c checks) fabricationComplete(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	pkgs, err := store.FilterAs[domain.FabricationPackage](ctx, r, store.FabricationPackages, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return []Finding{{
			Reason: "No fabrication packages for work package",
			Action: "Create the fabrication packages",
		}}, nil
	}
	open := slices.DeleteFunc(pkgs, func(p domain.FabricationPackage) bool { return p.Status == "complete" })
	if len(open) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(open), "fabrication packages not complete"),
		Action: "Complete the fabrication packages",
	}}, nil
}

func (c checks) qcApproved(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	lists, err := store.FilterAs[domain.QCChecklist](ctx, r, store.QCChecklists, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	pending := slices.DeleteFunc(lists, func(q domain.QCChecklist) bool { return q.Status == "approved" })
	if len(pending) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(pending), "QC checklists not approved"),
		Action: "Approve the QC checklists",
	}}, nil
}

// Delivery -> Erection

func (c checks) materialDelivered(ctx context.Context, r store.Reader, wp domain.WorkPackage, opts Options) ([]Finding, error) {
	dels, err := store.FilterAs[domain.Delivery](ctx, r, store.Deliveries, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	if len(dels) == 0 {
		return []Finding{{
			Reason: "No deliveries scheduled for work package",
			Action: "Schedule deliveries for the work package",
		}}, nil
	}
	outstanding := slices.DeleteFunc(slices.Clone(dels), func(d domain.Delivery) bool {
		return slices.Contains(c.rules.DeliveredStatuses, d.Status)
	})
	switch {
	case opts.CheckMaterialAvailability && len(outstanding) > 0:
		return []Finding{{
			Reason: c.counted(labels(outstanding), "deliveries not received"),
			Action: "Receive every outstanding delivery on site",
		}}, nil
	case len(outstanding) == len(dels):
		return []Finding{{
			Reason: "No deliveries received on site",
			Action: "Receive at least one delivery on site",
		}}, nil
	}
	return nil, nil
}

func (c checks) siteReady(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	recs, err := store.FilterAs[domain.ErectionReadiness](ctx, r, store.ErectionReadiness, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	site, equipment := true, true
	for _, er := range recs {
		site = site && er.SiteReady
		equipment = equipment && er.EquipmentReady
	}
	var out []Finding
	if !site {
		out = append(out, Finding{Reason: "Site not ready for erection", Action: "Confirm site readiness"})
	}
	if !equipment {
		out = append(out, Finding{Reason: "Equipment not ready for erection", Action: "Confirm erection equipment is on site"})
	}
	return out, nil
}

func (c checks) noBlockingConstraints(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	crit := byWorkPackage(wp).
		And(store.Eq("status", "active")).
		And(store.Eq("execution_blocking", true))
	cons, err := store.FilterAs[domain.Constraint](ctx, r, store.Constraints, crit)
	if err != nil {
		return nil, err
	}
	if len(cons) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(cons), "active execution-blocking constraints"),
		Action: "Resolve the execution-blocking constraints",
	}}, nil
}

// Erection -> Closeout

func (c checks) installsComplete(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	installs, err := store.FilterAs[domain.FieldInstall](ctx, r, store.FieldInstalls, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	if len(installs) == 0 {
		return []Finding{{
			Reason: "No field installs recorded for work package",
			Action: "Record the field installs",
		}}, nil
	}
	open := slices.DeleteFunc(installs, func(f domain.FieldInstall) bool { return f.Status == "complete" })
	if len(open) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(open), "field installs not complete"),
		Action: "Complete the field installs",
	}}, nil
}

func (c checks) punchListClear(ctx context.Context, r store.Reader, wp domain.WorkPackage, _ Options) ([]Finding, error) {
	items, err := store.FilterAs[domain.PunchItem](ctx, r, store.PunchItems, byWorkPackage(wp))
	if err != nil {
		return nil, err
	}
	open := slices.DeleteFunc(items, func(p domain.PunchItem) bool { return p.Status == "completed" })
	if len(open) == 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: c.counted(labels(open), "open punch items"),
		Action: "Complete the open punch items",
	}}, nil
}

// Closeout -> Completed

func (c checks) closeoutDocuments(ctx context.Context, r store.Reader, wp domain.WorkPackage, opts Options) ([]Finding, error) {
	if !opts.RequireCloseoutDocs {
		return nil, nil
	}
	docs, err := r.Filter(ctx, store.Documents, byWorkPackage(wp).And(store.Eq("tags", domain.TagCloseout)))
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return nil, nil
	}
	return []Finding{{
		Reason: "No closeout documents attached",
		Action: fmt.Sprintf("Attach documents tagged %q", domain.TagCloseout),
	}}, nil
}

func (c checks) finalInspection(_ context.Context, _ store.Reader, wp domain.WorkPackage, opts Options) ([]Finding, error) {
	if !opts.RequireFinalInspection || wp.FinalInspectionPassed {
		return nil, nil
	}
	return []Finding{{Reason: "Final inspection not passed", Action: "Pass the final inspection"}}, nil
}

func (c checks) clientAcceptance(_ context.Context, _ store.Reader, wp domain.WorkPackage, opts Options) ([]Finding, error) {
	if !opts.RequireClientAcceptance || wp.ClientAccepted {
		return nil, nil
	}
	return []Finding{{Reason: "Client acceptance not recorded", Action: "Record client acceptance"}}, nil
}

type labeled interface{ Label() string }

func labels[T labeled](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label()
	}
	return out
}

// counted renders "N noun: a, b, c", listing at most MaxListedIDs sorted
// identifiers and summarizing the rest as " (+N more)".
func (c checks) counted(ids []string, noun string) string {
	sorted := slices.Clone(ids)
	sort.Strings(sorted)
	list := sorted
	more := 0
	if limit := c.rules.MaxListedIDs; limit > 0 && len(sorted) > limit {
		list, more = sorted[:limit], len(sorted)-limit
	}
	s := fmt.Sprintf("%d %s: %s", len(ids), noun, strings.Join(list, ", "))
	if more > 0 {
		s += fmt.Sprintf(" (+%d more)", more)
	}
	return s
}
