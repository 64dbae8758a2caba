package domain

import "fmt"

// Edge identifies one directed phase transition.
type Edge struct {
	From Phase
	To   Phase
}

func (e Edge) String() string { return fmt.Sprintf("%s->%s", e.From, e.To) }

// GateResult is the outcome of one readiness gate. Pass holds exactly when
// Reasons is empty, and Actions pairs one remediation with each reason.
type GateResult struct {
	Gate    string   `json:"gate"`
	Pass    bool     `json:"pass"`
	Reasons []string `json:"reasons"`
	Actions []string `json:"actions"`
}

// TransitionTrace records one evaluation attempt for audit.
type TransitionTrace struct {
	ID            string       `json:"id"`
	WorkPackageID string       `json:"work_package_id"`
	From          Phase        `json:"from"`
	To            Phase        `json:"to"`
	EvaluatedAt   string       `json:"evaluated_at" format:"date-time"`
	EdgeLegal     bool         `json:"edge_legal"`
	Gates         []GateResult `json:"gates"`
	Reasons       []string     `json:"reasons"`
	Actions       []string     `json:"actions"`
	Pass          bool         `json:"pass"`
}

// Edge returns the transition the trace evaluated.
func (t TransitionTrace) Edge() Edge { return Edge{From: t.From, To: t.To} }

// TransitionEvent is an audit row written for every executed evaluation.
type TransitionEvent struct {
	ID            int64           `json:"id"`
	TS            string          `json:"ts" format:"date-time"`
	Type          string          `json:"type"`
	ProjectID     string          `json:"project_id,omitempty"`
	WorkPackageID string          `json:"work_package_id"`
	ActorID       string          `json:"actor_id"`
	Trace         TransitionTrace `json:"trace"`
}
