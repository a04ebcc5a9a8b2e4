package models

import "time"

// Participant is a registered attendee holding exactly one ticket number.
// Email is stored normalized and is the dedup key.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Number    int       `json:"number"`
	CreatedAt time.Time `json:"createdAt"`
}

// Winner records the outcome of a single draw. ParticipantID and
// ParticipantName are a snapshot taken at draw time.
type Winner struct {
	ID              string    `json:"id"`
	Number          int       `json:"number"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	Prize           string    `json:"prize"`
	DrawnAt         time.Time `json:"drawnAt"`
}

// DrawStats summarizes the state of the event for the operator dashboard.
type DrawStats struct {
	EventName     string `json:"eventName"`
	MinNumber     int    `json:"minNumber"`
	MaxNumber     int    `json:"maxNumber"`
	PoolSize      int    `json:"poolSize"`
	Participants  int    `json:"participants"`
	Winners       int    `json:"winners"`
	Available     int    `json:"available"`
	UnusedNumbers int    `json:"unusedNumbers"`
}

// EventInfo is the public description of the running event.
type EventInfo struct {
	Name      string `json:"name"`
	MinNumber int    `json:"minNumber"`
	MaxNumber int    `json:"maxNumber"`
}
