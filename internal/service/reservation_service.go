package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
)

type userChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type reservationStore interface {
	Create(ctx context.Context, res *models.Reservation) error
	FindActiveBySlot(ctx context.Context, slot models.Slot) (*models.Reservation, error)
	FindByID(ctx context.Context, id string) (*models.ReservationDetail, error)
	ListByMentee(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ReservationStatus, next models.ReservationStatus) (bool, error)
	Reject(ctx context.Context, id, reason string) (bool, error)
	AttachRoom(ctx context.Context, id, roomID string) (bool, error)
}

// ReservationConfig tunes the lifecycle manager.
type ReservationConfig struct {
	HoldDuration time.Duration
	Location     *time.Location
	Now          func() time.Time
}

// ReservationService owns the reservation state machine.
type ReservationService struct {
	repo      reservationStore
	sessions  sessionReader
	users     userChecker
	events    EventEmitter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	hold time.Duration
	loc  *time.Location
	now  func() time.Time
}

// NewReservationService instantiates ReservationService.
func NewReservationService(
	repo reservationStore,
	sessions sessionReader,
	users userChecker,
	events EventEmitter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ReservationConfig,
) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopEmitter{}
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ReservationService{
		repo:      repo,
		sessions:  sessions,
		users:     users,
		events:    events,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		hold:      cfg.HoldDuration,
		loc:       cfg.Location,
		now:       cfg.Now,
	}
}

// Create places a PENDING hold on a slot for the acting mentee.
func (s *ReservationService) Create(ctx context.Context, actor models.Actor, req dto.CreateReservationRequest) (*dto.CreateReservationResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}
	date, err := time.ParseInLocation(models.DateLayout, req.Date, s.loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "date must be YYYY-MM-DD")
	}
	if err := models.ValidateClockRange(req.StartTime, req.EndTime); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time range")
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if session.MentorID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "mentors cannot book their own session")
	}
	if session.Price <= 0 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "session has no price to pay")
	}

	now := s.now()
	res := &models.Reservation{
		SessionID: session.ID,
		MenteeID:  actor.UserID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.ReservationPending,
		Question:  strings.TrimSpace(req.Question),
	}
	if res.StartsAt(s.loc).Before(now) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "cannot book a slot that has already started")
	}

	if _, err := s.repo.FindActiveBySlot(ctx, res.Slot()); err == nil {
		s.metrics.RecordSlotConflict()
		return nil, appErrors.ErrSlotTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check slot")
	}

	exists, err := s.users.Exists(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load mentee")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "mentee not found")
	}

	expiresAt := now.Add(s.hold).UTC()
	res.ExpiresAt = &expiresAt
	res.CreatedAt = now.UTC()
	if err := s.repo.Create(ctx, res); err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			s.metrics.RecordSlotConflict()
			return nil, appErrors.ErrSlotTaken
		}
		return nil, appErrors.Internal(err, "failed to create reservation")
	}

	s.metrics.RecordTransition(models.ReservationPending, "create", 1)
	s.logger.Info("reservation hold created",
		zap.String("reservation_id", res.ID),
		zap.String("session_id", res.SessionID),
		zap.String("mentee_id", res.MenteeID),
		zap.String("date", req.Date),
		zap.String("start_time", res.StartTime),
		zap.Time("expires_at", expiresAt),
	)
	return &dto.CreateReservationResponse{ReservationID: res.ID, Status: res.Status, ExpiresAt: expiresAt}, nil
}

// Get returns a reservation visible to actor.
func (s *ReservationService) Get(ctx context.Context, actor models.Actor, id string) (*models.ReservationDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewReservation(actor, detail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to another user")
	}
	return detail, nil
}

// ListMine pages the acting mentee's reservations.
func (s *ReservationService) ListMine(ctx context.Context, actor models.Actor, page, limit int) ([]models.ReservationDetail, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, total, err := s.repo.ListByMentee(ctx, models.ReservationFilter{MenteeID: actor.UserID, Page: page, PageSize: limit})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list reservations")
	}
	if items == nil {
		items = []models.ReservationDetail{}
	}
	return items, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// Reject turns down a PENDING reservation on behalf of its mentor or an admin.
func (s *ReservationService) Reject(ctx context.Context, actor models.Actor, id, reason string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appErrors.Clone(appErrors.ErrBadRequest, "reject reason is required")
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManageSession(actor, detail.MentorID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the session mentor can reject")
	}
	if !detail.Status.CanTransitionTo(models.ReservationRejected) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending reservations can be rejected")
	}

	ok, err := s.repo.Reject(ctx, id, reason)
	if err != nil {
		return appErrors.Internal(err, "failed to reject reservation")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "reservation is no longer pending")
	}

	s.metrics.RecordTransition(models.ReservationRejected, "reject", 1)
	s.logger.Info("reservation rejected", zap.String("reservation_id", id), zap.String("actor_id", actor.UserID))
	s.events.Emit(ctx, newReservationEvent(models.EventReservationRejected, id, map[string]string{"reason": reason}))
	return nil
}

// Cancel releases the acting mentee's unpaid hold. Paid reservations are
// cancelled through a refund instead.
func (s *ReservationService) Cancel(ctx context.Context, actor models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if detail.MenteeID != actor.UserID && !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to another user")
	}
	if detail.Status != models.ReservationPending {
		if detail.Status == models.ReservationConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "paid reservations must be refunded")
		}
		return appErrors.Clone(appErrors.ErrInvalidTransition, "reservation cannot be cancelled")
	}

	ok, err := s.repo.UpdateStatus(ctx, nil, id, []models.ReservationStatus{models.ReservationPending}, models.ReservationCancelled)
	if err != nil {
		return appErrors.Internal(err, "failed to cancel reservation")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "reservation is no longer pending")
	}

	s.metrics.RecordTransition(models.ReservationCancelled, "cancel", 1)
	s.logger.Info("reservation hold cancelled", zap.String("reservation_id", id), zap.String("actor_id", actor.UserID))
	s.events.Emit(ctx, newReservationEvent(models.EventReservationCancelled, id, nil))
	return nil
}

// AttachRoom records the chat/video room for a paid reservation. It reports
// false when a room was already attached or the reservation is not live.
func (s *ReservationService) AttachRoom(ctx context.Context, id, roomID string) (bool, error) {
	ok, err := s.repo.AttachRoom(ctx, id, roomID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to attach room")
	}
	return ok, nil
}

// ReviewEligibility reports whether actor can review the reservation.
func (s *ReservationService) ReviewEligibility(ctx context.Context, actor models.Actor, id string) (*models.ReviewEligibility, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewReservation(actor, detail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to another user")
	}
	result := &models.ReviewEligibility{ReservationID: id, Status: detail.Status}
	switch {
	case detail.MenteeID != actor.UserID:
		result.Reason = "only the mentee can review"
	case detail.Status != models.ReservationCompleted:
		result.Reason = "session has not completed"
	default:
		result.Eligible = true
	}
	return result, nil
}

func (s *ReservationService) load(ctx context.Context, id string) (*models.ReservationDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation not found")
		}
		return nil, appErrors.Internal(err, "failed to load reservation")
	}
	return detail, nil
}
