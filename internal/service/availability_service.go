package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

type availabilityRepository interface {
	ListByMentorDay(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error)
	ListByMentor(ctx context.Context, mentorID string) ([]models.AvailabilityWindow, error)
	FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error)
	Create(ctx context.Context, window *models.AvailabilityWindow) error
	Update(ctx context.Context, window *models.AvailabilityWindow) error
	Delete(ctx context.Context, id, mentorID string) error
}

// AvailabilityService manages mentors' recurring weekly windows.
type AvailabilityService struct {
	repo      availabilityRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService. cache may be nil.
func NewAvailabilityService(repo availabilityRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

func availabilityCacheKey(mentorID string, day models.DayOfWeek) string {
	return fmt.Sprintf("availability:%s:%s", mentorID, day)
}

func availabilityCachePattern(mentorID string) string {
	return fmt.Sprintf("availability:%s:*", mentorID)
}

// WindowsFor returns a mentor's windows for one weekday, cache first.
func (s *AvailabilityService) WindowsFor(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error) {
	key := availabilityCacheKey(mentorID, day)
	var cached []models.AvailabilityWindow
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	windows, err := s.repo.ListByMentorDay(ctx, mentorID, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}
	if windows == nil {
		windows = []models.AvailabilityWindow{}
	}
	_ = s.cache.Set(ctx, key, windows, s.cacheTTL)
	return windows, nil
}

// List returns a mentor's windows, optionally restricted to one weekday.
func (s *AvailabilityService) List(ctx context.Context, mentorID, day string) ([]models.AvailabilityWindow, error) {
	if day != "" {
		d, err := models.ParseDayOfWeek(day)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid day of week")
		}
		return s.WindowsFor(ctx, mentorID, d)
	}
	windows, err := s.repo.ListByMentor(ctx, mentorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list availability")
	}
	return windows, nil
}

// Create declares a new window for the acting mentor.
func (s *AvailabilityService) Create(ctx context.Context, actor models.Actor, req dto.UpsertAvailabilityRequest) (*models.AvailabilityWindow, error) {
	if err := s.checkMentor(actor); err != nil {
		return nil, err
	}
	window, err := s.buildWindow(req)
	if err != nil {
		return nil, err
	}
	window.MentorID = actor.UserID

	if err := s.repo.Create(ctx, window); err != nil {
		return nil, appErrors.Internal(err, "failed to create availability")
	}
	s.invalidate(ctx, actor.UserID)
	s.logger.Info("availability window created",
		zap.String("mentor_id", window.MentorID),
		zap.String("day_of_week", string(window.DayOfWeek)),
		zap.String("start_time", window.StartTime),
		zap.String("end_time", window.EndTime),
	)
	return window, nil
}

// Update edits a window owned by the acting mentor.
func (s *AvailabilityService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpsertAvailabilityRequest) (*models.AvailabilityWindow, error) {
	existing, err := s.ownedWindow(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	window, err := s.buildWindow(req)
	if err != nil {
		return nil, err
	}
	window.ID = existing.ID
	window.MentorID = existing.MentorID
	window.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, window); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability not found")
		}
		return nil, appErrors.Internal(err, "failed to update availability")
	}
	s.invalidate(ctx, existing.MentorID)
	return window, nil
}

// Delete removes a window owned by the acting mentor.
func (s *AvailabilityService) Delete(ctx context.Context, actor models.Actor, id string) error {
	existing, err := s.ownedWindow(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, existing.ID, existing.MentorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability not found")
		}
		return appErrors.Internal(err, "failed to delete availability")
	}
	s.invalidate(ctx, existing.MentorID)
	return nil
}

func (s *AvailabilityService) checkMentor(actor models.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != models.RoleMentor && !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only mentors manage availability")
	}
	return nil
}

func (s *AvailabilityService) ownedWindow(ctx context.Context, actor models.Actor, id string) (*models.AvailabilityWindow, error) {
	if err := s.checkMentor(actor); err != nil {
		return nil, err
	}
	window, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability not found")
		}
		return nil, appErrors.Internal(err, "failed to load availability")
	}
	if !canManageSession(actor, window.MentorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "availability belongs to another mentor")
	}
	return window, nil
}

func (s *AvailabilityService) buildWindow(req dto.UpsertAvailabilityRequest) (*models.AvailabilityWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	day, err := models.ParseDayOfWeek(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid day of week")
	}
	if err := models.ValidateClockRange(req.StartTime, req.EndTime); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time range")
	}
	return &models.AvailabilityWindow{DayOfWeek: day, StartTime: req.StartTime, EndTime: req.EndTime}, nil
}

func (s *AvailabilityService) invalidate(ctx context.Context, mentorID string) {
	if err := s.cache.Invalidate(ctx, availabilityCachePattern(mentorID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("mentor_id", mentorID), zap.Error(err))
	}
}
