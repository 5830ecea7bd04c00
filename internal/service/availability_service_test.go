package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

type memAvailability struct {
	seq     int
	windows map[string]*models.AvailabilityWindow
	dayHits int
}

func newMemAvailability() *memAvailability {
	return &memAvailability{windows: make(map[string]*models.AvailabilityWindow)}
}

func (m *memAvailability) ListByMentorDay(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error) {
	m.dayHits++
	var out []models.AvailabilityWindow
	for _, w := range m.windows {
		if w.MentorID == mentorID && w.DayOfWeek == day {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memAvailability) ListByMentor(ctx context.Context, mentorID string) ([]models.AvailabilityWindow, error) {
	var out []models.AvailabilityWindow
	for _, w := range m.windows {
		if w.MentorID == mentorID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memAvailability) FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	if w, ok := m.windows[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memAvailability) Create(ctx context.Context, window *models.AvailabilityWindow) error {
	m.seq++
	window.ID = fmt.Sprintf("w-%d", m.seq)
	cp := *window
	m.windows[window.ID] = &cp
	return nil
}

func (m *memAvailability) Update(ctx context.Context, window *models.AvailabilityWindow) error {
	if _, ok := m.windows[window.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *window
	m.windows[window.ID] = &cp
	return nil
}

func (m *memAvailability) Delete(ctx context.Context, id, mentorID string) error {
	if w, ok := m.windows[id]; !ok || w.MentorID != mentorID {
		return sql.ErrNoRows
	}
	delete(m.windows, id)
	return nil
}

type mapCache struct {
	values      map[string][]models.AvailabilityWindow
	invalidated []string
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]models.AvailabilityWindow)) = v
	return nil
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = value.([]models.AvailabilityWindow)
	return nil
}

func (c *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	c.values = make(map[string][]models.AvailabilityWindow)
	return nil
}

func TestAvailabilityServiceLifecycle(t *testing.T) {
	repo := newMemAvailability()
	cache := &mapCache{values: make(map[string][]models.AvailabilityWindow)}
	svc := NewAvailabilityService(repo, NewCacheService(cache, nil, time.Minute, nil, true), time.Minute, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, mentor, dto.UpsertAvailabilityRequest{DayOfWeek: "monday", StartTime: "10:00", EndTime: "11:00"})
	require.NoError(t, err)
	assert.Equal(t, testMentorID, created.MentorID)
	assert.Equal(t, models.Monday, created.DayOfWeek)

	windows, err := svc.WindowsFor(ctx, testMentorID, models.Monday)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	_, err = svc.WindowsFor(ctx, testMentorID, models.Monday)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.dayHits, "second read is served from cache")

	updated, err := svc.Update(ctx, mentor, created.ID, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "13:00", EndTime: "14:00"})
	require.NoError(t, err)
	assert.Equal(t, "13:00", updated.StartTime)
	assert.Contains(t, cache.invalidated, "availability:mentor-1:*")

	windows, err = svc.List(ctx, testMentorID, "Monday")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "13:00", windows[0].StartTime)

	require.NoError(t, svc.Delete(ctx, mentor, created.ID))
	windows, err = svc.List(ctx, testMentorID, "")
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestAvailabilityServiceGuards(t *testing.T) {
	repo := newMemAvailability()
	svc := NewAvailabilityService(repo, nil, 0, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, mentee, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "10:00", EndTime: "11:00"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(ctx, mentor, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "11:00", EndTime: "10:00"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, mentor, dto.UpsertAvailabilityRequest{DayOfWeek: "FUNDAY", StartTime: "10:00", EndTime: "11:00"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, mentor, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "25:00", EndTime: "26:00"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	created, err := svc.Create(ctx, mentor, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "10:00", EndTime: "11:00"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, otherMentor, created.ID, dto.UpsertAvailabilityRequest{DayOfWeek: "MONDAY", StartTime: "12:00", EndTime: "13:00"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	err = svc.Delete(ctx, otherMentor, created.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Delete(ctx, admin, created.ID))

	err = svc.Delete(ctx, mentor, created.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.List(ctx, testMentorID, "someday")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
