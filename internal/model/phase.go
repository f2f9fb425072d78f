package model

import "strings"

// Phase is one of the fixed, strictly ordered stages of a residential build.
type Phase string

const (
	PhaseGrondwerk      Phase = "GRONDWERK"
	PhaseFundering      Phase = "FUNDERING"
	PhaseRuwbouw        Phase = "RUWBOUW"
	PhaseDakconstructie Phase = "DAKCONSTRUCTIE"
	PhaseGevel          Phase = "GEVEL"
	PhaseInstallaties   Phase = "INSTALLATIES"
	PhaseAfbouw         Phase = "AFBOUW"
	PhaseOplevering     Phase = "OPLEVERING"
)

// Phases lists every phase in build order, earthworks first.
var Phases = []Phase{
	PhaseGrondwerk,
	PhaseFundering,
	PhaseRuwbouw,
	PhaseDakconstructie,
	PhaseGevel,
	PhaseInstallaties,
	PhaseAfbouw,
	PhaseOplevering,
}

var phaseLabels = map[Phase]string{
	PhaseGrondwerk:      "Grondwerk",
	PhaseFundering:      "Fundering",
	PhaseRuwbouw:        "Ruwbouw",
	PhaseDakconstructie: "Dakconstructie",
	PhaseGevel:          "Gevel & kozijnen",
	PhaseInstallaties:   "Installaties",
	PhaseAfbouw:         "Afbouw",
	PhaseOplevering:     "Oplevering",
}

// ParsePhase returns the canonical phase for an exact (case-insensitive) id.
func ParsePhase(s string) (Phase, bool) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	if p.Valid() {
		return p, true
	}
	return "", false
}

// Valid reports whether p is one of the canonical phases.
func (p Phase) Valid() bool {
	_, ok := phaseLabels[p]
	return ok
}

// Label returns the human readable name of the phase.
func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return "Onbekend"
}

// Index returns the zero-based position of p in build order, or -1.
func (p Phase) Index() int {
	for i, candidate := range Phases {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Next returns the immediate successor of p. ok is false for the terminal
// phase and for unknown phases.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(Phases) {
		return "", false
	}
	return Phases[i+1], true
}

// After reports whether p comes strictly later in build order than other.
func (p Phase) After(other Phase) bool {
	return p.Index() > other.Index()
}
