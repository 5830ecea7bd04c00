package models

import (
	"time"
)

// DateLayout is the calendar date format used on the wire and in queries.
const DateLayout = "2006-01-02"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationProgress  ReservationStatus = "PROGRESS"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationRejected  ReservationStatus = "REJECTED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationExpired, ReservationCancelled, ReservationRejected},
	ReservationConfirmed: {ReservationProgress, ReservationCompleted, ReservationCancelled},
	ReservationProgress:  {ReservationCompleted},
}

// SlotHoldingStatuses are the states that occupy a slot.
var SlotHoldingStatuses = []ReservationStatus{
	ReservationPending,
	ReservationConfirmed,
	ReservationProgress,
	ReservationCompleted,
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// HoldsSlot reports whether a reservation in this state blocks its slot.
func (s ReservationStatus) HoldsSlot() bool {
	for _, st := range SlotHoldingStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationProgress, ReservationCompleted,
		ReservationCancelled, ReservationExpired, ReservationRejected:
		return true
	}
	return false
}

// Reservation is a mentee's booking of one slot of a session.
type Reservation struct {
	ID           string            `db:"id" json:"id"`
	SessionID    string            `db:"session_id" json:"session_id"`
	MenteeID     string            `db:"mentee_id" json:"mentee_id"`
	Date         time.Time         `db:"reservation_date" json:"date"`
	StartTime    string            `db:"start_time" json:"start_time"`
	EndTime      string            `db:"end_time" json:"end_time"`
	Status       ReservationStatus `db:"status" json:"status"`
	Question     string            `db:"question" json:"question"`
	ExpiresAt    *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	PaidAt       *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	RejectReason *string           `db:"reject_reason" json:"reject_reason,omitempty"`
	RoomID       *string           `db:"room_id" json:"room_id,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// ReservationDetail joins a reservation with the session fields needed for
// authorization and payment checks.
type ReservationDetail struct {
	Reservation
	MentorID     string `db:"mentor_id" json:"mentor_id"`
	SessionTitle string `db:"session_title" json:"session_title"`
	Price        int64  `db:"price" json:"price"`
}

// DateString renders the reservation date as YYYY-MM-DD.
func (r Reservation) DateString() string {
	return r.Date.Format(DateLayout)
}

// Slot returns the slot this reservation occupies.
func (r Reservation) Slot() Slot {
	return Slot{SessionID: r.SessionID, Date: r.DateString(), StartTime: r.StartTime, EndTime: r.EndTime}
}

// HoldExpired reports whether a pending hold is past its deadline at now.
func (r Reservation) HoldExpired(now time.Time) bool {
	return r.Status == ReservationPending && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// StartsAt returns the wall-clock start of the booked window in loc.
func (r Reservation) StartsAt(loc *time.Location) time.Time {
	return atClock(r.Date, r.StartTime, loc)
}

// EndsAt returns the wall-clock end of the booked window in loc.
func (r Reservation) EndsAt(loc *time.Location) time.Time {
	return atClock(r.Date, r.EndTime, loc)
}

func atClock(date time.Time, clock string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	minutes, err := ClockMinutes(clock)
	if err != nil {
		minutes = 0
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

// Slot is a (date, start, end) tuple scoped to one session.
type Slot struct {
	SessionID string
	Date      string
	StartTime string
	EndTime   string
}

// Matches reports tuple-exact equality of the time window.
func (s Slot) Matches(start, end string) bool {
	return s.StartTime == start && s.EndTime == end
}

// ReservationFilter describes paging for a mentee's reservation list.
type ReservationFilter struct {
	MenteeID string
	Status   *ReservationStatus
	Page     int
	PageSize int
}

// ScheduleEntry is one row of a mentor's exported schedule.
type ScheduleEntry struct {
	ReservationDetail
	MenteeName string `db:"mentee_name" json:"mentee_name"`
}

// ScheduleFilter selects a mentor's reservations over an inclusive date range.
type ScheduleFilter struct {
	MentorID string
	From     time.Time
	To       time.Time
	Statuses []ReservationStatus
}

// ReviewEligibility tells a client whether a review prompt applies.
type ReviewEligibility struct {
	ReservationID string            `json:"reservation_id"`
	Status        ReservationStatus `json:"status"`
	Eligible      bool              `json:"eligible"`
	Reason        string            `json:"reason,omitempty"`
}
