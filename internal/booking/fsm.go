// Package booking drives the book, change and cancel operations as finite state machines fed
// one line of operator input at a time.
package booking

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"medadmin/internal/models"
)

// State is the lifecycle state of an operation session.
type State string

const (
	StateCollecting State = "collecting_input"
	StateValidating State = "validating"
	StateConfirming State = "confirming"
	StateCommitted  State = "committed"
	StateAborted    State = "aborted"
)

// Step is the field being collected while in StateCollecting.
type Step string

const (
	StepNone       Step = ""
	StepUserID     Step = "user_id"
	StepDate       Step = "date"
	StepTime       Step = "time"
	StepReason     Step = "reason"
	StepTargetDate Step = "target_date"
	StepTargetTime Step = "target_time"
)

// Operation is the kind of change a session performs.
type Operation string

const (
	OpBook   Operation = models.OperationBook
	OpChange Operation = models.OperationChange
	OpCancel Operation = models.OperationCancel
)

// ErrSessionClosed is returned for input sent to a committed or aborted session.
var ErrSessionClosed = errors.New("session is closed")

// Draft holds the values collected so far.
type Draft struct {
	UserID     string
	Date       string
	Time       string
	Reason     string
	TargetDate string
	TargetTime string

	// Existing is the user's appointments as listed at the user_id step of change and cancel.
	Existing []models.Appointment
	// Target is the appointment selected for change or cancel.
	Target models.Appointment
	// Available is the free slot list shown for Date.
	Available []string
	// Result is the stored appointment after commit.
	Result models.Appointment
}

// Session is one run of an operation.
type Session struct {
	ID        string
	Operation Operation
	State     State
	Step      Step
	Draft     Draft
	StartedAt time.Time
	UpdatedAt time.Time
	mu        sync.Mutex
}

// NewSession creates a session waiting for a user id.
func NewSession(op Operation) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Operation: op,
		State:     StateCollecting,
		Step:      StepUserID,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// GetState returns current state and step.
func (s *Session) GetState() (State, Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State, s.Step
}

// SetState updates the session state.
func (s *Session) SetState(state State, step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
	s.Step = step
	s.UpdatedAt = time.Now()
}

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	state, _ := s.GetState()
	return state.Terminal()
}

// IsExpired checks if session has expired.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.UpdatedAt) > timeout
}

// Terminal reports whether no transition leaves st.
func (st State) Terminal() bool {
	return st == StateCommitted || st == StateAborted
}

// SessionStore manages sessions by id.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a new session store.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// Create starts and stores a new session for op.
func (ss *SessionStore) Create(op Operation) *Session {
	session := NewSession(op)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[session.ID] = session
	return session
}

// Get returns a live session, or nil when it is unknown or expired.
func (ss *SessionStore) Get(id string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	session, ok := ss.sessions[id]
	if !ok || session.IsExpired(ss.timeout) {
		return nil
	}
	return session
}

// Delete removes a session.
func (ss *SessionStore) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired and finished sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for id, session := range ss.sessions {
		if session.IsExpired(ss.timeout) || session.Done() {
			delete(ss.sessions, id)
			removed++
		}
	}
	return removed
}

// FSM holds the allowed state transitions.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateCollecting: {StateCollecting, StateValidating, StateConfirming, StateAborted},
			StateValidating: {StateCollecting, StateConfirming, StateAborted},
			StateConfirming: {StateCommitted, StateCollecting, StateAborted},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition updates the session state if the transition is allowed.
func (f *FSM) Transition(session *Session, to State, step Step) bool {
	from, _ := session.GetState()
	if !f.CanTransition(from, to) {
		return false
	}
	session.SetState(to, step)
	return true
}

// TransitionResult contains the result of processing input.
type TransitionResult struct {
	NewState State
	Step     Step
	Message  string
	Error    error
}
