package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.MentoringSession, error)
}

type windowSource interface {
	WindowsFor(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error)
}

type takenSlotLister interface {
	ListTaken(ctx context.Context, sessionID, date string) ([]models.Reservation, error)
}

// SlotService computes the bookable windows of a session on a date.
type SlotService struct {
	sessions     sessionReader
	windows      windowSource
	reservations takenSlotLister
	logger       *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(sessions sessionReader, windows windowSource, reservations takenSlotLister, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{sessions: sessions, windows: windows, reservations: reservations, logger: logger}
}

// AvailableTimes returns the mentor's windows for the weekday of date whose
// exact (start, end) pair is not held by a live reservation.
func (s *SlotService) AvailableTimes(ctx context.Context, sessionID, date string) (*dto.AvailableTimesResponse, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "date must be YYYY-MM-DD")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}

	weekday := models.DayOfWeekOf(day)
	windows, err := s.windows.WindowsFor(ctx, session.MentorID, weekday)
	if err != nil {
		return nil, err
	}

	taken, err := s.reservations.ListTaken(ctx, sessionID, date)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load reservations")
	}

	open := subtractTaken(windows, taken)
	resp := &dto.AvailableTimesResponse{
		SessionID: sessionID,
		Date:      date,
		DayOfWeek: weekday,
		Windows:   make([]dto.TimeWindow, 0, len(open)),
	}
	for _, w := range open {
		resp.Windows = append(resp.Windows, dto.TimeWindow{AvailabilityID: w.ID, StartTime: w.StartTime, EndTime: w.EndTime})
	}
	return resp, nil
}

// subtractTaken drops windows whose exact time pair is held. Overlapping but
// unequal ranges are not treated as collisions.
func subtractTaken(windows []models.AvailabilityWindow, taken []models.Reservation) []models.AvailabilityWindow {
	held := make(map[[2]string]struct{}, len(taken))
	for _, r := range taken {
		if r.Status.HoldsSlot() {
			held[[2]string{r.StartTime, r.EndTime}] = struct{}{}
		}
	}
	open := make([]models.AvailabilityWindow, 0, len(windows))
	seen := make(map[[2]string]struct{}, len(windows))
	for _, w := range windows {
		key := [2]string{w.StartTime, w.EndTime}
		if _, ok := held[key]; ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		open = append(open, w)
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].StartTime == open[j].StartTime {
			return open[i].EndTime < open[j].EndTime
		}
		return open[i].StartTime < open[j].StartTime
	})
	return open
}
