package models

import "time"

// Event kinds published after a state change has been committed.
const (
	EventParticipantRegistered = "participant.registered"
	EventWinnerDrawn           = "winner.drawn"
	EventWinnerDeleted         = "winner.deleted"
	EventWinnersReset          = "winners.reset"
	EventParticipantsReset     = "participants.reset"
)

// Event is the payload handed to announcers.
type Event struct {
	Kind        string       `json:"kind"`
	At          time.Time    `json:"at"`
	Participant *Participant `json:"participant,omitempty"`
	Winner      *Winner      `json:"winner,omitempty"`
	Deleted     int          `json:"deleted,omitempty"`
}
