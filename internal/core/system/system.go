package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: accept sessions, drain packet queues
	PhasePreUpdate               // 1: swap and dispatch last tick's events
	PhaseUpdate                  // 2: drain job events onto the bus
	PhasePostUpdate              // 3: catalog upkeep
	PhaseOutput                  // 4: flush session output
	PhasePersist                 // 5: save finished worlds
	PhaseCleanup                 // 6: drop closed sessions
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
