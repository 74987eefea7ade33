package challenge

import (
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// State is an in-memory challenge lifecycle state.
type State string

const (
	StateCreated             State = "created"
	StateSent                State = "sent"
	StateAccepted            State = "accepted"
	StateDeclined            State = "declined"
	StateFightTypeSelected   State = "fight_type_selected"
	StateParticipantsJoining State = "participants_joining"
	StateFightActive         State = "fight_active"
	StateFightFinished       State = "fight_finished"
	StateExpired             State = "expired"
	StateCancelled           State = "cancelled"
)

// transitions is the static adjacency table of legal state changes. States
// with no outgoing edges are terminal.
var transitions = map[State][]State{
	StateCreated:             {StateSent, StateCancelled},
	StateSent:                {StateAccepted, StateDeclined, StateExpired, StateCancelled},
	StateAccepted:            {StateFightTypeSelected, StateCancelled},
	StateFightTypeSelected:   {StateParticipantsJoining, StateCancelled},
	StateParticipantsJoining: {StateFightActive, StateExpired, StateCancelled},
	StateFightActive:         {StateFightFinished, StateCancelled},
	StateFightFinished:       {},
	StateDeclined:            {},
	StateExpired:             {},
	StateCancelled:           {},
}

// StateChange is one entry of a state machine's append-only history.
type StateChange struct {
	State State
	At    time.Time
}

// StateMachine enforces legal challenge-state transitions. It is owned
// exclusively by the arbiter for the lifetime of one active challenge and
// is discarded on reaching a terminal state. It performs no I/O; rejected
// transitions are logged and reported as a boolean, never as an error used
// for control flow.
type StateMachine struct {
	clock   quartz.Clock
	logger  zerolog.Logger
	current State
	history []StateChange
}

// NewStateMachine returns a state machine at CREATED.
func NewStateMachine(clock quartz.Clock, logger zerolog.Logger) *StateMachine {
	return NewStateMachineAt(clock, logger, StateCreated)
}

// NewStateMachineAt returns a state machine at an arbitrary initial state,
// used when rehydrating an active challenge.
func NewStateMachineAt(clock quartz.Clock, logger zerolog.Logger, initial State) *StateMachine {
	if _, ok := transitions[initial]; !ok {
		logger.Error().Str("state", string(initial)).Msg("Unknown initial state, defaulting to created")
		initial = StateCreated
	}
	return &StateMachine{
		clock:   clock,
		logger:  logger.With().Str("component", "state_machine").Logger(),
		current: initial,
		history: []StateChange{{State: initial, At: clock.Now()}},
	}
}

// CanTransition reports whether an edge from the current state to target
// exists.
func (m *StateMachine) CanTransition(target State) bool {
	for _, next := range transitions[m.current] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition moves the machine to target if the edge exists, appending the
// change to the history. On a rejected transition the state is left
// unchanged and false is returned.
func (m *StateMachine) Transition(target State) bool {
	if !m.CanTransition(target) {
		m.logger.Warn().
			Str("current_state", string(m.current)).
			Str("target_state", string(target)).
			Msg("Invalid state transition attempted")
		return false
	}

	old := m.current
	m.current = target
	m.history = append(m.history, StateChange{State: target, At: m.clock.Now()})

	m.logger.Debug().
		Str("old_state", string(old)).
		Str("new_state", string(target)).
		Msg("Challenge state transitioned")
	return true
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	return m.current
}

// History returns a copy of the transition history.
func (m *StateMachine) History() []StateChange {
	out := make([]StateChange, len(m.history))
	copy(out, m.history)
	return out
}

// IsTerminal reports whether the current state has no outgoing edges.
func (m *StateMachine) IsTerminal() bool {
	return len(transitions[m.current]) == 0
}

// IsActive reports whether the challenge is in a live, non-terminal state.
// CREATED does not count as active; the challenge has not been sent yet.
func (m *StateMachine) IsActive() bool {
	return m.current != StateCreated && !m.IsTerminal()
}

// TimeInState returns how long the machine has dwelled in its current
// state.
func (m *StateMachine) TimeInState() time.Duration {
	last := m.history[len(m.history)-1]
	return m.clock.Since(last.At)
}

// TotalDuration returns the elapsed time since the machine was created.
func (m *StateMachine) TotalDuration() time.Duration {
	return m.clock.Since(m.history[0].At)
}
