package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxParticipantNameLen = 36

var (
	ErrParticipantNameEmpty   = errors.New("participant name empty")
	ErrParticipantNameTooLong = errors.New("participant name too long")
)

type ParticipantID string

// Participant is a meeting attendee reported through event updates.
type Participant struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(name string) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrParticipantNameEmpty
	}
	if len(name) > MaxParticipantNameLen {
		return nil, ErrParticipantNameTooLong
	}
	return &Participant{ID: ParticipantID(uuid.NewString()), Name: name}, nil
}
