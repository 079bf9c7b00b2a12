package app

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

var (
	ErrSessionStopped = errors.New("session already stopped")
	ErrBadTransition  = errors.New("invalid session state transition")
)

// Session is one live streaming session, created per successful
// signaling handshake. State changes go through Apply so the transition
// table lives in one place.
type Session struct {
	ID        string
	Key       domain.StreamKey
	CreatedAt time.Time

	mu          sync.Mutex
	completed   bool
	state       protocol.SessionState
	streamState protocol.StreamState
	stopReason  protocol.StopReason
}

func NewSession(key domain.StreamKey) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Key:         key,
		CreatedAt:   time.Now(),
		completed:   true,
		state:       protocol.SessionStarted,
		streamState: protocol.StreamInactive,
	}
}

func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *Session) State() protocol.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) StreamState() protocol.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamState
}

func (s *Session) StopReason() protocol.StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

// MarkStreamActive records that media frames started flowing.
func (s *Session) MarkStreamActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamState == protocol.StreamInactive {
		s.streamState = protocol.StreamActive
	}
}

// Apply advances the session state machine:
// STARTED -> {PAUSED, STOPPED}; PAUSED -> {RESUMED, STOPPED};
// RESUMED -> {PAUSED, STOPPED}; STOPPED is terminal.
// Entering STOPPED picks a stop reason and terminates the stream state;
// the chosen reason is returned.
func (s *Session) Apply(next protocol.SessionState) (protocol.StopReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == protocol.SessionStopped {
		return "", ErrSessionStopped
	}

	switch next {
	case protocol.SessionPaused:
		if s.state != protocol.SessionStarted && s.state != protocol.SessionResumed {
			return "", ErrBadTransition
		}
	case protocol.SessionResumed:
		if s.state != protocol.SessionPaused {
			return "", ErrBadTransition
		}
	case protocol.SessionStopped:
		// reachable from every live state
	default:
		return "", ErrBadTransition
	}

	s.state = next
	if next == protocol.SessionStopped {
		s.stopReason = protocol.RandomStopReason()
		s.streamState = protocol.StreamTerminated
		return s.stopReason, nil
	}
	return "", nil
}
