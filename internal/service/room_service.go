package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/signing"
)

type roomStore interface {
	Get(ctx context.Context, id string) (*models.Room, error)
	Claim(ctx context.Context, room *models.Room) (*models.Room, bool, error)
	FindByReservation(ctx context.Context, reservationID string) (*models.Room, error)
	Delete(ctx context.Context, room *models.Room) error
}

type reservationFinder interface {
	FindByID(ctx context.Context, id string) (*models.ReservationDetail, error)
}

type roomAttacher interface {
	AttachRoom(ctx context.Context, id, roomID string) (bool, error)
}

type passSigner interface {
	Sign(subject, resource string) (string, time.Time, error)
	Verify(token string) (*signing.Claims, error)
}

// RoomService provisions one shared room per confirmed reservation.
type RoomService struct {
	rooms        roomStore
	reservations reservationFinder
	attacher     roomAttacher
	passes       passSigner
	loc          *time.Location
	logger       *zap.Logger
}

// NewRoomService instantiates RoomService.
func NewRoomService(rooms roomStore, reservations reservationFinder, attacher roomAttacher, passes passSigner, loc *time.Location, logger *zap.Logger) *RoomService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{rooms: rooms, reservations: reservations, attacher: attacher, passes: passes, loc: loc, logger: logger}
}

// Name implements EventSink.
func (s *RoomService) Name() string { return "rooms" }

// Handle provisions a room when a reservation is confirmed and tears it down
// when the reservation is refunded. Redelivery is harmless because Claim
// returns the existing room.
func (s *RoomService) Handle(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventReservationConfirmed:
		_, err := s.Provision(ctx, event.ReservationID)
		return err
	case models.EventReservationRefunded:
		return s.release(ctx, event.ReservationID)
	}
	return nil
}

func (s *RoomService) release(ctx context.Context, reservationID string) error {
	room, err := s.rooms.FindByReservation(ctx, reservationID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, room); err != nil {
		return err
	}
	s.logger.Info("room released", zap.String("reservation_id", reservationID), zap.String("room_id", room.ID))
	return nil
}

// Provision returns the room for a live reservation, creating it on first use.
func (s *RoomService) Provision(ctx context.Context, reservationID string) (*models.Room, error) {
	detail, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch detail.Status {
	case models.ReservationConfirmed, models.ReservationProgress:
	default:
		s.logger.Debug("skipping room for inactive reservation",
			zap.String("reservation_id", reservationID),
			zap.String("status", string(detail.Status)),
		)
		return nil, nil
	}

	room, created, err := s.rooms.Claim(ctx, &models.Room{
		ID:            uuid.NewString(),
		ReservationID: detail.ID,
		SessionID:     detail.SessionID,
		MentorID:      detail.MentorID,
		MenteeID:      detail.MenteeID,
		StartsAt:      detail.StartsAt(s.loc),
		EndsAt:        detail.EndsAt(s.loc),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if detail.RoomID == nil || *detail.RoomID != room.ID {
		if _, err := s.attacher.AttachRoom(ctx, detail.ID, room.ID); err != nil {
			return nil, err
		}
	}
	if created {
		s.logger.Info("room provisioned", zap.String("reservation_id", detail.ID), zap.String("room_id", room.ID))
	}
	return room, nil
}

// ForReservation returns the room of a reservation the actor takes part in.
func (s *RoomService) ForReservation(ctx context.Context, actor models.Actor, reservationID string) (*models.Room, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	detail, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation not found")
		}
		return nil, appErrors.Internal(err, "failed to load reservation")
	}
	if !canViewReservation(actor, detail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to another user")
	}

	room, err := s.rooms.FindByReservation(ctx, reservationID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, appErrors.Internal(err, "failed to load room")
	}
	room, err = s.Provision(ctx, reservationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to provision room")
	}
	if room == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation has no active room")
	}
	return room, nil
}

// IssuePass mints a join token for a participant of the reservation's room.
func (s *RoomService) IssuePass(ctx context.Context, actor models.Actor, reservationID string) (*models.RoomPass, error) {
	room, err := s.ForReservation(ctx, actor, reservationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(room, actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only participants can join the room")
	}
	token, expiresAt, err := s.passes.Sign(actor.UserID, room.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to issue room pass")
	}
	return &models.RoomPass{
		RoomID:        room.ID,
		ReservationID: room.ReservationID,
		UserID:        actor.UserID,
		Token:         token,
		ExpiresAt:     expiresAt,
	}, nil
}

// VerifyPass resolves a join token back to a live room and participant.
func (s *RoomService) VerifyPass(ctx context.Context, token string) (*models.RoomPass, error) {
	claims, err := s.passes.Verify(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid room pass")
	}
	room, err := s.rooms.Get(ctx, claims.Resource)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room is no longer active")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load room")
	}
	if !isParticipant(room, claims.Subject) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "pass holder is not a participant")
	}
	return &models.RoomPass{
		RoomID:        room.ID,
		ReservationID: room.ReservationID,
		UserID:        claims.Subject,
		ExpiresAt:     claims.ExpiresAt,
	}, nil
}

func isParticipant(room *models.Room, userID string) bool {
	return userID != "" && (room.MentorID == userID || room.MenteeID == userID)
}
