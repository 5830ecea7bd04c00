package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

type stubWindows struct {
	windows map[models.DayOfWeek][]models.AvailabilityWindow
	gotDay  models.DayOfWeek
	gotID   string
}

func (s *stubWindows) WindowsFor(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error) {
	s.gotID, s.gotDay = mentorID, day
	return s.windows[day], nil
}

func mondayWindows() *stubWindows {
	return &stubWindows{windows: map[models.DayOfWeek][]models.AvailabilityWindow{
		models.Monday: {
			{ID: "w3", StartTime: "14:00", EndTime: "15:00"},
			{ID: "w1", StartTime: "10:00", EndTime: "11:00"},
			{ID: "w2", StartTime: "11:00", EndTime: "12:00"},
			{ID: "w4", StartTime: "10:00", EndTime: "11:00"},
		},
	}}
}

func TestSlotServiceAvailableTimes(t *testing.T) {
	store := newMemStore(defaultSessions())
	windows := mondayWindows()
	svc := NewSlotService(defaultSessions(), windows, store, nil)

	store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "11:00", EndTime: "12:00", Status: models.ReservationConfirmed})
	store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "14:00", EndTime: "15:00", Status: models.ReservationExpired})
	store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-09"), StartTime: "10:30", EndTime: "11:30", Status: models.ReservationPending})
	store.put(models.Reservation{SessionID: testSessionID, MenteeID: testMenteeID, Date: mustDate(t, "2026-03-16"), StartTime: "10:00", EndTime: "11:00", Status: models.ReservationPending})

	resp, err := svc.AvailableTimes(context.Background(), testSessionID, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, testMentorID, windows.gotID)
	assert.Equal(t, models.Monday, resp.DayOfWeek)

	var got [][2]string
	for _, w := range resp.Windows {
		got = append(got, [2]string{w.StartTime, w.EndTime})
	}
	assert.Equal(t, [][2]string{{"10:00", "11:00"}, {"14:00", "15:00"}}, got,
		"taken exact tuple removed, overlapping hold ignored, expired frees, duplicates collapsed, sorted")
}

func TestSlotServiceNoWindowsOnDay(t *testing.T) {
	svc := NewSlotService(defaultSessions(), mondayWindows(), newMemStore(defaultSessions()), nil)

	resp, err := svc.AvailableTimes(context.Background(), testSessionID, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, models.Tuesday, resp.DayOfWeek)
	assert.NotNil(t, resp.Windows)
	assert.Empty(t, resp.Windows)
}

func TestSlotServiceErrors(t *testing.T) {
	svc := NewSlotService(defaultSessions(), mondayWindows(), newMemStore(defaultSessions()), nil)

	_, err := svc.AvailableTimes(context.Background(), testSessionID, "2026/03/09")
	assert.True(t, errors.Is(err, appErrors.ErrBadRequest))

	_, err = svc.AvailableTimes(context.Background(), "missing", "2026-03-09")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
