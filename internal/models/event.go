package models

import "time"

// EventType names a downstream reservation event.
type EventType string

const (
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationRefunded  EventType = "reservation.refunded"
	EventReservationExpired   EventType = "reservation.expired"
	EventReservationRejected  EventType = "reservation.rejected"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationCompleted EventType = "reservation.completed"
)

// Event is emitted after a reservation transition commits.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	ReservationID string            `json:"reservation_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Room is a chat/video room shared across gateway instances.
type Room struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	SessionID     string    `json:"session_id"`
	MentorID      string    `json:"mentor_id"`
	MenteeID      string    `json:"mentee_id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// RoomPass admits one participant into a room until ExpiresAt.
type RoomPass struct {
	RoomID        string    `json:"room_id"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	Token         string    `json:"token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SweepName identifies one periodic time-driven pass.
type SweepName string

const (
	SweepExpireHolds      SweepName = "expire_holds"
	SweepStartSessions    SweepName = "start_sessions"
	SweepCompleteSessions SweepName = "complete_sessions"
)

// SweepResult summarises one sweep execution.
type SweepResult struct {
	Name     SweepName     `json:"name"`
	Affected int           `json:"affected"`
	IDs      []string      `json:"ids,omitempty"`
	RanAt    time.Time     `json:"ran_at"`
	Duration time.Duration `json:"duration"`
}
