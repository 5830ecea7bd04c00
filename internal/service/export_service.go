package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/export"
)

const maxExportRange = 92 * 24 * time.Hour

// exportedStatuses are the reservations a mentor is paid for.
var exportedStatuses = []models.ReservationStatus{
	models.ReservationConfirmed,
	models.ReservationProgress,
	models.ReservationCompleted,
}

var scheduleHeaders = []string{"Date", "Start", "End", "Session", "Mentee", "Status", "Price"}

type scheduleSource interface {
	ListSchedule(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, error)
}

// ExportFile is a rendered document ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders a mentor's booked sessions as CSV or PDF.
type ExportService struct {
	source    scheduleSource
	renderers map[string]export.Renderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(source scheduleSource, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ExportService{
		source:    source,
		renderers: make(map[string]export.Renderer),
		validator: validate,
		logger:    logger,
	}
	for _, r := range []export.Renderer{export.NewCSVExporter(), export.NewPDFExporter()} {
		svc.renderers[r.Extension()] = r
	}
	return svc
}

// MentorSchedule exports the paid reservations of one mentor over a date range.
func (s *ExportService) MentorSchedule(ctx context.Context, actor models.Actor, query dto.ScheduleExportQuery) (*ExportFile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}

	mentorID := actor.UserID
	switch {
	case actor.IsAdmin():
		if query.MentorID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "mentor_id is required")
		}
		mentorID = query.MentorID
	case actor.Role != models.RoleMentor:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only mentors can export a schedule")
	}

	from, _ := time.Parse(models.DateLayout, query.From)
	to, _ := time.Parse(models.DateLayout, query.To)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if to.Sub(from) > maxExportRange {
		return nil, appErrors.Clone(appErrors.ErrValidation, "export range is limited to 92 days")
	}

	format := query.Format
	if format == "" {
		format = "csv"
	}
	renderer := s.renderers[format]

	entries, err := s.source.ListSchedule(ctx, models.ScheduleFilter{
		MentorID: mentorID,
		From:     from,
		To:       to,
		Statuses: exportedStatuses,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule")
	}

	body, err := renderer.Render(scheduleDataset(query.From, query.To, entries))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render schedule")
	}
	s.logger.Info("schedule exported",
		zap.String("mentor_id", mentorID),
		zap.String("requested_by", actor.UserID),
		zap.String("format", format),
		zap.Int("rows", len(entries)),
	)
	return &ExportFile{
		Filename:    fmt.Sprintf("schedule_%s_%s.%s", query.From, query.To, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
		Rows:        len(entries),
	}, nil
}

func scheduleDataset(from, to string, entries []models.ScheduleEntry) export.Dataset {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		mentee := e.MenteeName
		if mentee == "" {
			mentee = e.MenteeID
		}
		rows = append(rows, []string{
			e.DateString(),
			e.StartTime,
			e.EndTime,
			e.SessionTitle,
			mentee,
			string(e.Status),
			strconv.FormatInt(e.Price, 10),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Mentoring schedule %s to %s", from, to),
		Headers: scheduleHeaders,
		Rows:    rows,
	}
}
