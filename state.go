package coop

import "sync/atomic"

// schedState is the lifecycle of a drain loop (scheduler or driver).
//
//	stateIdle     → stateDraining  [RunUntilQuiescent, Driver.Run]
//	stateDraining → stateIdle      [drain returns]
//	stateDraining → stateParked    [driver waiting for work]
//	stateParked   → stateDraining  [wake]
//	any           → stateStopped   [driver terminal]
//
// Reversible transitions go through tryTransition (CAS); only the terminal
// stateStopped may be stored directly.
type schedState uint32

const (
	stateIdle schedState = iota
	stateDraining
	stateParked
	stateStopped
)

// String returns a human-readable representation of the state.
func (s schedState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateDraining:
		return "Draining"
	case stateParked:
		return "Parked"
	case stateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine over schedState. It exists so the
// reentrancy guard and the driver's park/wake handshake work without a
// mutex, even though the scheduler core itself is single-threaded.
type fastState struct {
	v atomic.Uint32
}

func (s *fastState) load() schedState {
	return schedState(s.v.Load())
}

func (s *fastState) store(state schedState) {
	s.v.Store(uint32(state))
}

func (s *fastState) tryTransition(from, to schedState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
