package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/signing"
)

type memRooms struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func newMemRooms() *memRooms {
	return &memRooms{rooms: make(map[string]*models.Room)}
}

func (m *memRooms) Claim(ctx context.Context, room *models.Room) (*models.Room, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rooms[room.ReservationID]; ok {
		return existing, false, nil
	}
	m.rooms[room.ReservationID] = room
	return room, true, nil
}

func (m *memRooms) Get(ctx context.Context, id string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.rooms {
		if room.ID == id {
			return room, nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (m *memRooms) FindByReservation(ctx context.Context, reservationID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[reservationID]; ok {
		return room, nil
	}
	return nil, repository.ErrRoomNotFound
}

func (m *memRooms) Delete(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, room.ReservationID)
	return nil
}

func TestRoomServiceProvisionsOnConfirmed(t *testing.T) {
	store := newMemStore(defaultSessions())
	rooms := newMemRooms()
	svc := NewRoomService(rooms, store, store, signing.NewSigner("room-secret", time.Hour), seoul, nil)
	res := store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "10:00", EndTime: "11:00", Status: models.ReservationConfirmed})
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, newReservationEvent(models.EventReservationConfirmed, res.ID, nil)))
	room, err := rooms.FindByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, testMentorID, room.MentorID)
	assert.Equal(t, testMenteeID, room.MenteeID)
	assert.Equal(t, 10, room.StartsAt.Hour())
	assert.Equal(t, seoul, room.StartsAt.Location())

	stored, err := store.FindByID(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RoomID)
	assert.Equal(t, room.ID, *stored.RoomID)

	require.NoError(t, svc.Handle(ctx, newReservationEvent(models.EventReservationConfirmed, res.ID, nil)))
	again, err := rooms.FindByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID, "redelivery keeps the same room")

	require.NoError(t, svc.Handle(ctx, newReservationEvent(models.EventReservationRefunded, res.ID, nil)))
	_, err = rooms.FindByReservation(ctx, res.ID)
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestRoomServiceSkipsInactiveReservations(t *testing.T) {
	store := newMemStore(defaultSessions())
	rooms := newMemRooms()
	svc := NewRoomService(rooms, store, store, signing.NewSigner("room-secret", time.Hour), seoul, nil)
	res := store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "10:00", EndTime: "11:00", Status: models.ReservationCancelled})

	require.NoError(t, svc.Handle(context.Background(), newReservationEvent(models.EventReservationConfirmed, res.ID, nil)))
	assert.Empty(t, rooms.rooms)

	require.NoError(t, svc.Handle(context.Background(), newReservationEvent(models.EventReservationExpired, res.ID, nil)))
}

func TestRoomServiceForReservation(t *testing.T) {
	store := newMemStore(defaultSessions())
	rooms := newMemRooms()
	svc := NewRoomService(rooms, store, store, signing.NewSigner("room-secret", time.Hour), seoul, nil)
	res := store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "10:00", EndTime: "11:00", Status: models.ReservationConfirmed})
	pending := store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "12:00", EndTime: "13:00", Status: models.ReservationPending})
	ctx := context.Background()

	room, err := svc.ForReservation(ctx, mentor, res.ID)
	require.NoError(t, err, "room is provisioned lazily when the event has not arrived yet")
	same, err := svc.ForReservation(ctx, mentee, res.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, same.ID)

	_, err = svc.ForReservation(ctx, otherMentee, res.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.ForReservation(ctx, mentee, pending.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.ForReservation(ctx, mentee, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRoomServicePasses(t *testing.T) {
	store := newMemStore(defaultSessions())
	rooms := newMemRooms()
	svc := NewRoomService(rooms, store, store, signing.NewSigner("room-secret", time.Hour), seoul, nil)
	res := store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "10:00", EndTime: "11:00", Status: models.ReservationConfirmed})
	ctx := context.Background()

	pass, err := svc.IssuePass(ctx, mentee, res.ID)
	require.NoError(t, err)
	require.NotEmpty(t, pass.Token)
	assert.Equal(t, testMenteeID, pass.UserID)

	verified, err := svc.VerifyPass(ctx, pass.Token)
	require.NoError(t, err)
	assert.Equal(t, pass.RoomID, verified.RoomID)
	assert.Equal(t, res.ID, verified.ReservationID)
	assert.Empty(t, verified.Token)

	_, err = svc.IssuePass(ctx, admin, res.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden), "admins may view but not join")

	_, err = svc.VerifyPass(ctx, pass.Token+"x")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	require.NoError(t, svc.Handle(ctx, newReservationEvent(models.EventReservationRefunded, res.ID, nil)))
	_, err = svc.VerifyPass(ctx, pass.Token)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
