package action

import (
	"fmt"
	"strings"
)

// Phase is a named startup checkpoint by which its ActionSequence must be
// fully executed.
type Phase string

const (
	// StaticInit runs before first construction of the hosting process completes.
	StaticInit Phase = "STATIC_INIT"
	// Startup runs before the hosting process begins serving requests.
	Startup Phase = "STARTUP"
)

// Phases lists every phase in the order a process reaches them.
var Phases = []Phase{StaticInit, Startup}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p == StaticInit || p == Startup
}

// Index returns the position of p in Phases, or -1.
func (p Phase) Index() int {
	for i, known := range Phases {
		if known == p {
			return i
		}
	}
	return -1
}

// ParsePhase accepts the canonical names case-insensitively.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}
