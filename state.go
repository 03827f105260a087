package output

import "sync/atomic"

// Phase is the tagged lifecycle state of an Output: an explicit tagged
// state enum for the phases, paired with a side table (flags) of
// orthogonal booleans that can each be true independent of phase.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseActive
	PhaseStopping
	PhaseDelayedStarting
	PhaseDelayedActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseActive:
		return "active"
	case PhaseStopping:
		return "stopping"
	case PhaseDelayedStarting:
		return "delayed_starting"
	case PhaseDelayedActive:
		return "delayed_active"
	default:
		return "unknown"
	}
}

// flags is the orthogonal boolean side table: active, reconnecting,
// delay_active, delay_capturing, data_active, paused, and
// stopping_event can each be simultaneously true independent of phase
// (e.g. reconnecting and delay_active and not data_active).
type flags struct {
	active        atomic.Bool
	reconnecting  atomic.Bool
	delayActive   atomic.Bool
	delayCapture  atomic.Bool
	dataActive    atomic.Bool
	paused        atomic.Bool
	stoppingEvent atomic.Bool // manual-reset "event"
}

// phaseState bundles the tagged phase with the orthogonal flags. set does
// not check transitions against legalFrom.
type phaseState struct {
	phase atomic.Int32
	flags flags
}

func (s *phaseState) get() Phase { return Phase(s.phase.Load()) }

func (s *phaseState) set(p Phase) { s.phase.Store(int32(p)) }

// legalFrom reports whether transitioning the tagged phase from `from` to
// `to` is a legal step of the state machine. Only tests call it; Output's
// lifecycle methods set phases directly without consulting it.
func legalFrom(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseStarting || to == PhaseDelayedStarting
	case PhaseStarting:
		return to == PhaseActive || to == PhaseStopping
	case PhaseDelayedStarting:
		return to == PhaseDelayedActive || to == PhaseStopping
	case PhaseActive, PhaseDelayedActive:
		return to == PhaseStopping
	case PhaseStopping:
		return to == PhaseIdle
	default:
		return false
	}
}
