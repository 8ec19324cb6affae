package conversation

import "time"

// State is where a run is in the request/dispatch cycle. There is no failure
// state: local tool errors become results and gateway errors end the run.
type State int

const (
	StateAwaitingModel State = iota
	StateToolRequested
	StateToolExecuted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateToolRequested:
		return "TOOL_REQUESTED"
	case StateToolExecuted:
		return "TOOL_EXECUTED"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
	Mode      Mode
	Iteration int
}

// StateListener observes run state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(event StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

// stateMachine tracks one run. It is not shared between goroutines.
type stateMachine struct {
	current   State
	mode      Mode
	iteration int
	listeners []StateListener
}

func newStateMachine(mode Mode, listeners []StateListener) *stateMachine {
	return &stateMachine{current: StateAwaitingModel, mode: mode, listeners: listeners}
}

func (sm *stateMachine) State() State { return sm.current }

func (sm *stateMachine) transitionValid(from, to State) bool {
	afterTool := StateAwaitingModel
	if sm.mode == ModeSingleTurn {
		afterTool = StateDone
	}
	validTransitions := map[State][]State{
		StateAwaitingModel: {StateToolRequested, StateDone},
		StateToolRequested: {StateToolExecuted},
		StateToolExecuted:  {afterTool},
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation and notifies listeners.
func (sm *stateMachine) Transition(state State, reason string) error {
	if !sm.transitionValid(sm.current, state) {
		return &InvalidTransitionError{From: sm.current, To: state}
	}
	if state == StateToolRequested {
		sm.iteration++
	}
	event := StateChange{
		FromState: sm.current,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
		Mode:      sm.mode,
		Iteration: sm.iteration,
	}
	sm.current = state
	for _, l := range sm.listeners {
		l.OnStateChange(event)
	}
	return nil
}
