package position

import "solana-pool-trader/internal/domain"

// Event is a lifecycle transition request.
type Event string

// Lifecycle events
const (
	EventPositionOpened    Event = "POSITION_OPENED"
	EventExitConditionMet  Event = "EXIT_CONDITION_MET"
	EventExitApproved      Event = "EXIT_APPROVED"
	EventExitCompleted     Event = "EXIT_COMPLETED"
	EventErrorOccurred     Event = "ERROR_OCCURRED"
	EventRecoveryCompleted Event = "RECOVERY_COMPLETED"
)

type edge struct {
	from []domain.PositionState // nil = any non-terminal state
	to   domain.PositionState
}

var transitions = map[Event]edge{
	EventPositionOpened:    {from: []domain.PositionState{domain.PositionStateCreated}, to: domain.PositionStateMonitoring},
	EventExitConditionMet:  {from: []domain.PositionState{domain.PositionStateMonitoring}, to: domain.PositionStateExitConditionMet},
	EventExitApproved:      {from: []domain.PositionState{domain.PositionStateExitConditionMet}, to: domain.PositionStateExitApproved},
	EventExitCompleted:     {from: []domain.PositionState{domain.PositionStateExitApproved}, to: domain.PositionStateExitCompleted},
	EventErrorOccurred:     {from: nil, to: domain.PositionStateError},
	EventRecoveryCompleted: {from: []domain.PositionState{domain.PositionStateError}, to: domain.PositionStateMonitoring},
}

// IsTerminal reports whether s accepts no further transitions.
func IsTerminal(s domain.PositionState) bool {
	return s == domain.PositionStateExitCompleted
}

// Next returns the destination of event from state, or false if the
// transition is not in the table.
func Next(from domain.PositionState, event Event) (domain.PositionState, bool) {
	e, ok := transitions[event]
	if !ok || IsTerminal(from) {
		return from, false
	}
	if e.from == nil {
		// ERROR_OCCURRED from ERROR is a no-op, not a transition.
		if from == e.to {
			return from, false
		}
		return e.to, true
	}
	for _, s := range e.from {
		if s == from {
			return e.to, true
		}
	}
	return from, false
}
