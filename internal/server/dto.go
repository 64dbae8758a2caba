package server

import (
	"phasegate/internal/domain"
	"phasegate/internal/engine"
)

// Request payloads

type CreateWorkPackageRequest struct {
	ID               string   `json:"id,omitempty"`
	ProjectID        string   `json:"project_id"`
	Name             string   `json:"name"`
	ScopeDescription string   `json:"scope_description,omitempty"`
	DrawingSetIDs    []string `json:"drawing_set_ids,omitempty"`
	ReleaseGroup     string   `json:"release_group,omitempty"`
}

// OptionsRequest overrides individual strictness flags; omitted flags keep
// the server's configured defaults.
type OptionsRequest struct {
	RequireCloseoutDocs       *bool `json:"require_closeout_docs,omitempty"`
	RequireFinalInspection    *bool `json:"require_final_inspection,omitempty"`
	RequireClientAcceptance   *bool `json:"require_client_acceptance,omitempty"`
	CheckMaterialAvailability *bool `json:"check_material_availability,omitempty"`
}

type TransitionRequest struct {
	Target  string          `json:"target" enum:"planning,detailing,fabrication,delivery,erection,closeout,completed"`
	Options *OptionsRequest `json:"options,omitempty"`
}

type CreateRecordRequest struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields" jsonschema:"type=object,additionalProperties=true"`
}

// Response payloads

type NextPhasesResponse struct {
	Phase domain.Phase   `json:"phase"`
	Next  []domain.Phase `json:"next"`
}

type TransitionResponse struct {
	Applied     bool                   `json:"applied"`
	WorkPackage domain.WorkPackage     `json:"work_package"`
	Trace       domain.TransitionTrace `json:"trace"`
}

type ReadinessResponse struct {
	WorkPackage domain.WorkPackage       `json:"work_package"`
	Traces      []domain.TransitionTrace `json:"traces"`
}

type RecordResponse struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Version    int64          `json:"version"`
	Fields     map[string]any `json:"fields" jsonschema:"type=object,additionalProperties=true"`
}

type EventsResponse struct {
	Items []domain.TransitionEvent `json:"items"`
}

func (o *OptionsRequest) apply(base engine.Options) engine.Options {
	if o == nil {
		return base
	}
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.RequireCloseoutDocs, o.RequireCloseoutDocs)
	set(&base.RequireFinalInspection, o.RequireFinalInspection)
	set(&base.RequireClientAcceptance, o.RequireClientAcceptance)
	set(&base.CheckMaterialAvailability, o.CheckMaterialAvailability)
	return base
}
