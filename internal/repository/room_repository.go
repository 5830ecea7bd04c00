package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

// ErrRoomNotFound is returned when no room is stored under a key.
var ErrRoomNotFound = errors.New("room not found")

// RoomRepository keeps chat/video rooms in Redis so every gateway instance
// resolves the same room for a reservation.
type RoomRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomRepository creates a room store with the given entry lifetime.
func NewRoomRepository(client *redis.Client, ttl time.Duration) *RoomRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RoomRepository{client: client, ttl: ttl}
}

func roomKey(id string) string {
	return fmt.Sprintf("room:%s", id)
}

func roomReservationKey(reservationID string) string {
	return fmt.Sprintf("room:reservation:%s", reservationID)
}

func (r *RoomRepository) lifetime(room *models.Room) time.Duration {
	ttl := r.ttl
	if !room.EndsAt.IsZero() {
		if untilEnd := time.Until(room.EndsAt) + time.Hour; untilEnd > ttl {
			ttl = untilEnd
		}
	}
	return ttl
}

// Claim stores room for its reservation unless one is already registered,
// in which case the existing room is returned and created is false.
func (r *RoomRepository) Claim(ctx context.Context, room *models.Room) (stored *models.Room, created bool, err error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("room store unavailable")
	}
	ttl := r.lifetime(room)
	ok, err := r.client.SetNX(ctx, roomReservationKey(room.ReservationID), room.ID, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim room for reservation %s: %w", room.ReservationID, err)
	}
	if !ok {
		existing, err := r.FindByReservation(ctx, room.ReservationID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	data, err := json.Marshal(room)
	if err != nil {
		return nil, false, fmt.Errorf("marshal room %s: %w", room.ID, err)
	}
	if err := r.client.Set(ctx, roomKey(room.ID), data, ttl).Err(); err != nil {
		_ = r.client.Del(ctx, roomReservationKey(room.ReservationID)).Err()
		return nil, false, fmt.Errorf("store room %s: %w", room.ID, err)
	}
	return room, true, nil
}

// Get loads a room by id.
func (r *RoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	if r.client == nil {
		return nil, ErrRoomNotFound
	}
	data, err := r.client.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", id, err)
	}
	return &room, nil
}

// FindByReservation resolves the room registered for a reservation.
func (r *RoomRepository) FindByReservation(ctx context.Context, reservationID string) (*models.Room, error) {
	if r.client == nil {
		return nil, ErrRoomNotFound
	}
	id, err := r.client.Get(ctx, roomReservationKey(reservationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup room for reservation %s: %w", reservationID, err)
	}
	return r.Get(ctx, id)
}

// Delete removes a room and its reservation index.
func (r *RoomRepository) Delete(ctx context.Context, room *models.Room) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, roomKey(room.ID), roomReservationKey(room.ReservationID)).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", room.ID, err)
	}
	return nil
}
