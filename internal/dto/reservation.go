package dto

import (
	"time"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

// CreateReservationRequest books one slot of a session.
type CreateReservationRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
	Question  string `json:"question" validate:"max=2000"`
}

// CreateReservationResponse carries the new hold.
type CreateReservationResponse struct {
	ReservationID string                   `json:"reservationId"`
	Status        models.ReservationStatus `json:"status"`
	ExpiresAt     time.Time                `json:"expiresAt"`
}

// RejectReservationRequest carries the mandatory rejection reason.
type RejectReservationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AvailableTimesQuery is bound from the query string.
type AvailableTimesQuery struct {
	Date string `form:"date" validate:"required,datetime=2006-01-02"`
}

// TimeWindow is one bookable window returned to clients.
type TimeWindow struct {
	AvailabilityID string `json:"availabilityId"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
}

// AvailableTimesResponse lists the open windows for a session on a date.
type AvailableTimesResponse struct {
	SessionID string           `json:"sessionId"`
	Date      string           `json:"date"`
	DayOfWeek models.DayOfWeek `json:"dayOfWeek"`
	Windows   []TimeWindow     `json:"windows"`
}

// ReservationResponse is the client-facing view of a reservation.
type ReservationResponse struct {
	ID           string                   `json:"id"`
	SessionID    string                   `json:"sessionId"`
	SessionTitle string                   `json:"sessionTitle,omitempty"`
	MentorID     string                   `json:"mentorId,omitempty"`
	MenteeID     string                   `json:"menteeId"`
	Date         string                   `json:"date"`
	StartTime    string                   `json:"startTime"`
	EndTime      string                   `json:"endTime"`
	Status       models.ReservationStatus `json:"status"`
	Question     string                   `json:"question,omitempty"`
	Price        int64                    `json:"price,omitempty"`
	ExpiresAt    *time.Time               `json:"expiresAt,omitempty"`
	PaidAt       *time.Time               `json:"paidAt,omitempty"`
	RejectReason *string                  `json:"rejectReason,omitempty"`
	RoomID       *string                  `json:"roomId,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
}

// NewReservationResponse maps a joined reservation row onto its response.
func NewReservationResponse(d models.ReservationDetail) ReservationResponse {
	r := d.Reservation
	resp := ReservationResponse{
		ID:           r.ID,
		SessionID:    r.SessionID,
		SessionTitle: d.SessionTitle,
		MentorID:     d.MentorID,
		MenteeID:     r.MenteeID,
		Date:         r.DateString(),
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Status:       r.Status,
		Question:     r.Question,
		Price:        d.Price,
		PaidAt:       r.PaidAt,
		RejectReason: r.RejectReason,
		RoomID:       r.RoomID,
		CreatedAt:    r.CreatedAt,
	}
	if r.Status == models.ReservationPending {
		resp.ExpiresAt = r.ExpiresAt
	}
	return resp
}
