package service

import (
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

// canManageSession reports whether actor may act as the mentor of a session.
func canManageSession(actor models.Actor, mentorID string) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.IsAdmin() || (actor.Role == models.RoleMentor && actor.UserID == mentorID)
}

// canViewReservation reports whether actor may read a reservation.
func canViewReservation(actor models.Actor, detail *models.ReservationDetail) bool {
	if actor.UserID == "" || detail == nil {
		return false
	}
	return actor.UserID == detail.MenteeID || canManageSession(actor, detail.MentorID)
}

func requireActor(actor models.Actor) error {
	if actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}
