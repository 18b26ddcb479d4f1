package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"collect next step", StateCollecting, StateCollecting, true},
		{"collect to validating", StateCollecting, StateValidating, true},
		{"collect to confirming", StateCollecting, StateConfirming, true},
		{"validating to confirming", StateValidating, StateConfirming, true},
		{"validating back to collect", StateValidating, StateCollecting, true},
		{"confirming to committed", StateConfirming, StateCommitted, true},
		{"confirming back to collect", StateConfirming, StateCollecting, true},
		{"abort from collect", StateCollecting, StateAborted, true},
		{"abort from validating", StateValidating, StateAborted, true},
		{"abort from confirming", StateConfirming, StateAborted, true},
		// Invalid transitions
		{"collect to committed", StateCollecting, StateCommitted, false},
		{"validating to committed", StateValidating, StateCommitted, false},
		{"committed is terminal", StateCommitted, StateCollecting, false},
		{"aborted is terminal", StateAborted, StateCollecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestSessionStateTransitions(t *testing.T) {
	fsm := NewFSM()
	session := NewSession(OpBook)

	state, step := session.GetState()
	assert.Equal(t, StateCollecting, state)
	assert.Equal(t, StepUserID, step)
	assert.NotEmpty(t, session.ID)

	require.True(t, fsm.Transition(session, StateValidating, StepNone))
	assert.False(t, fsm.Transition(session, StateCommitted, StepNone))
	state, _ = session.GetState()
	assert.Equal(t, StateValidating, state, "state should remain after failed transition")

	require.True(t, fsm.Transition(session, StateAborted, StepNone))
	assert.True(t, session.Done())
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(time.Hour)

	assert.Nil(t, store.Get("missing"))

	a := store.Create(OpBook)
	b := store.Create(OpCancel)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Same(t, a, store.Get(a.ID))
	assert.Equal(t, 2, store.Len())

	b.SetState(StateCommitted, StepNone)
	assert.Equal(t, 1, store.Cleanup(), "finished sessions are removed")
	assert.Nil(t, store.Get(b.ID))

	store.Delete(a.ID)
	assert.Zero(t, store.Len())
}

func TestSessionTimeout(t *testing.T) {
	store := NewSessionStore(time.Minute)
	session := store.Create(OpChange)
	session.UpdatedAt = time.Now().Add(-2 * time.Minute)

	assert.True(t, session.IsExpired(time.Minute))
	assert.Nil(t, store.Get(session.ID))
	assert.Equal(t, 1, store.Cleanup())
}

func TestStepPrompts(t *testing.T) {
	for _, step := range []Step{StepUserID, StepDate, StepTime, StepReason, StepTargetDate, StepTargetTime} {
		assert.NotEmpty(t, StepPrompts[step], "missing prompt for step %s", step)
	}
}
