package domain

import "fmt"

// Phase is a lifecycle stage of a work package.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseDetailing   Phase = "detailing"
	PhaseFabrication Phase = "fabrication"
	PhaseDelivery    Phase = "delivery"
	PhaseErection    Phase = "erection"
	PhaseCloseout    Phase = "closeout"
	PhaseCompleted   Phase = "completed"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{
	PhasePlanning,
	PhaseDetailing,
	PhaseFabrication,
	PhaseDelivery,
	PhaseErection,
	PhaseCloseout,
	PhaseCompleted,
}

// Index returns the ordinal of p in the lifecycle, or -1 when p is not a phase.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p.Index() >= 0 }

func (p Phase) String() string { return string(p) }

// ParsePhase accepts the lowercase wire value of a phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid phase %q", s)
	}
	return p, nil
}
