package engine

import (
	"time"

	"phasegate/internal/config"
)

// Options are the per-call strictness flags. The Closeout->Completed gate
// reads the Require* fields; CheckMaterialAvailability tightens
// Delivery->Erection from "at least one delivery received" to "every delivery
// received".
type Options struct {
	RequireCloseoutDocs       bool `json:"require_closeout_docs"`
	RequireFinalInspection    bool `json:"require_final_inspection"`
	RequireClientAcceptance   bool `json:"require_client_acceptance"`
	CheckMaterialAvailability bool `json:"check_material_availability"`
}

// DefaultOptions enables every closeout requirement.
func DefaultOptions() Options {
	return Options{
		RequireCloseoutDocs:     true,
		RequireFinalInspection:  true,
		RequireClientAcceptance: true,
	}
}

// OptionsFromConfig returns the configured strictness defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return DefaultOptions()
	}
	o := cfg.Gates.Options
	return Options{
		RequireCloseoutDocs:       o.RequireCloseoutDocs,
		RequireFinalInspection:    o.RequireFinalInspection,
		RequireClientAcceptance:   o.RequireClientAcceptance,
		CheckMaterialAvailability: o.CheckMaterialAvailability,
	}
}

// Rules are the status vocabularies the gates compare against.
type Rules struct {
	ReleasedDrawingStatuses []string
	OpenRFIStatuses         []string
	DeliveredStatuses       []string
	// MaxListedIDs caps identifiers quoted in one reason; zero lists all.
	MaxListedIDs int
}

func DefaultRules() Rules {
	return Rules{
		ReleasedDrawingStatuses: []string{"FFF"},
		OpenRFIStatuses:         []string{"open", "pending_response"},
		DeliveredStatuses:       []string{"delivered", "received"},
		MaxListedIDs:            10,
	}
}

func RulesFromConfig(cfg *config.Config) Rules {
	if cfg == nil {
		return DefaultRules()
	}
	return Rules{
		ReleasedDrawingStatuses: append([]string(nil), cfg.Gates.ReleasedDrawingStatuses...),
		OpenRFIStatuses:         append([]string(nil), cfg.Gates.OpenRFIStatuses...),
		DeliveredStatuses:       append([]string(nil), cfg.Gates.DeliveredStatuses...),
		MaxListedIDs:            cfg.Gates.MaxListedIDs,
	}
}

func timeoutFromConfig(cfg *config.Config) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.EvaluationTimeout()
}
