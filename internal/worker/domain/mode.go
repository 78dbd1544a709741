package domain

import "fmt"

// Mode selects what a consumer does with each delivery
type Mode int

const (
	// ModeRun executes the simulation and reports failures
	ModeRun Mode = iota
	// ModeDrain acknowledges deliveries without running anything
	ModeDrain
)

func (m Mode) String() string {
	switch m {
	case ModeRun:
		return "run"
	case ModeDrain:
		return "drain"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFromArgs maps the positional CLI arguments to a mode: a third
// argument after <scenario> <threads> switches to drain.
func ModeFromArgs(args []string) Mode {
	if len(args) > 2 {
		return ModeDrain
	}
	return ModeRun
}
