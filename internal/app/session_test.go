package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

var testKey = domain.StreamKey{MeetingUUID: "m1", StreamID: "s1"}

func TestNewSession(t *testing.T) {
	s := NewSession(testKey)
	require.NotEmpty(t, s.ID)
	require.True(t, s.Completed())
	require.Equal(t, protocol.SessionStarted, s.State())
	require.Equal(t, protocol.StreamInactive, s.StreamState())
}

func TestSessionTransitions(t *testing.T) {
	s := NewSession(testKey)

	_, err := s.Apply(protocol.SessionPaused)
	require.NoError(t, err)
	require.Equal(t, protocol.SessionPaused, s.State())

	_, err = s.Apply(protocol.SessionResumed)
	require.NoError(t, err)

	_, err = s.Apply(protocol.SessionPaused)
	require.NoError(t, err)

	_, err = s.Apply(protocol.SessionResumed)
	require.NoError(t, err)

	reason, err := s.Apply(protocol.SessionStopped)
	require.NoError(t, err)
	require.True(t, protocol.IsStopReason(reason))
	require.Equal(t, protocol.StreamTerminated, s.StreamState())
}

func TestSessionRejectsBadTransitions(t *testing.T) {
	s := NewSession(testKey)

	// RESUMED only follows PAUSED
	_, err := s.Apply(protocol.SessionResumed)
	require.ErrorIs(t, err, ErrBadTransition)

	// STARTED cannot be re-entered
	_, err = s.Apply(protocol.SessionStarted)
	require.ErrorIs(t, err, ErrBadTransition)

	// PAUSED twice in a row
	_, err = s.Apply(protocol.SessionPaused)
	require.NoError(t, err)
	_, err = s.Apply(protocol.SessionPaused)
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestStoppedIsTerminal(t *testing.T) {
	s := NewSession(testKey)
	_, err := s.Apply(protocol.SessionStopped)
	require.NoError(t, err)

	for _, next := range []protocol.SessionState{
		protocol.SessionStarted, protocol.SessionPaused,
		protocol.SessionResumed, protocol.SessionStopped,
	} {
		_, err := s.Apply(next)
		require.ErrorIs(t, err, ErrSessionStopped)
	}
}

func TestMarkStreamActive(t *testing.T) {
	s := NewSession(testKey)
	s.MarkStreamActive()
	require.Equal(t, protocol.StreamActive, s.StreamState())

	// terminal stream state is not revived
	_, err := s.Apply(protocol.SessionStopped)
	require.NoError(t, err)
	s.MarkStreamActive()
	require.Equal(t, protocol.StreamTerminated, s.StreamState())
}
