package l3accumulate

import (
	"errors"
	"fmt"
	"sync"
)

// State is a capture session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAccumulating
	StatePaused
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAccumulating:
		return "accumulating"
	case StatePaused:
		return "paused"
	case StateFlushed:
		return "flushed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned for a transition the lifecycle forbids,
// such as beginning capture from Idle.
var ErrInvalidTransition = errors.New("invalid session transition")

// Session is the capture lifecycle:
//
//	Idle -> Running -> {Accumulating, Paused} -> Flushed -> Running ...
//
// It only tracks state; the Controller applies the side effects.
type Session struct {
	mu       sync.Mutex
	state    State
	observer func(from, to State)
}

// NewSession returns a session in Idle. observer, if non-nil, is called
// for every state change including the transient Flushed state.
func NewSession(observer func(from, to State)) *Session {
	return &Session{state: StateIdle, observer: observer}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) moveLocked(to State) {
	from := s.state
	s.state = to
	if s.observer != nil {
		s.observer(from, to)
	}
}

func (s *Session) transition(op string, to State, allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allowed {
		if s.state == a {
			s.moveLocked(to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.state)
}

// Start moves Idle or Paused to Running.
func (s *Session) Start() error {
	return s.transition("start", StateRunning, StateIdle, StatePaused)
}

// BeginCapture moves Running to Accumulating.
func (s *Session) BeginCapture() error {
	return s.transition("beginCapture", StateAccumulating, StateRunning)
}

// Pause moves Running or Accumulating to Paused.
func (s *Session) Pause() error {
	return s.transition("pause", StatePaused, StateRunning, StateAccumulating)
}

// Flush is allowed from any state. It passes through Flushed and settles
// in Running with accumulation disabled.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moveLocked(StateFlushed)
	s.moveLocked(StateRunning)
}

// Stop returns to Idle from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		s.moveLocked(StateIdle)
	}
}
