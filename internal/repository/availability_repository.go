package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

const availabilityColumns = "id, mentor_id, day_of_week, start_time, end_time, created_at, updated_at"

// AvailabilityRepository persists mentors' weekly availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByMentorDay returns a mentor's windows for one weekday ordered by start time.
func (r *AvailabilityRepository) ListByMentorDay(ctx context.Context, mentorID string, day models.DayOfWeek) ([]models.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE mentor_id = $1 AND day_of_week = $2 ORDER BY start_time ASC, end_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, mentorID, day); err != nil {
		return nil, fmt.Errorf("list availability by mentor day: %w", err)
	}
	return windows, nil
}

// ListByMentor returns every window a mentor declared.
func (r *AvailabilityRepository) ListByMentor(ctx context.Context, mentorID string) ([]models.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE mentor_id = $1 ORDER BY CASE day_of_week
		WHEN 'MONDAY' THEN 1 WHEN 'TUESDAY' THEN 2 WHEN 'WEDNESDAY' THEN 3 WHEN 'THURSDAY' THEN 4
		WHEN 'FRIDAY' THEN 5 WHEN 'SATURDAY' THEN 6 ELSE 7 END, start_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, mentorID); err != nil {
		return nil, fmt.Errorf("list availability by mentor: %w", err)
	}
	return windows, nil
}

// FindByID loads a window by id.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE id = $1`
	var window models.AvailabilityWindow
	if err := r.db.GetContext(ctx, &window, query, id); err != nil {
		return nil, err
	}
	return &window, nil
}

// Create stores a new window.
func (r *AvailabilityRepository) Create(ctx context.Context, window *models.AvailabilityWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if window.CreatedAt.IsZero() {
		window.CreatedAt = now
	}
	window.UpdatedAt = now

	const query = `INSERT INTO availability_windows (id, mentor_id, day_of_week, start_time, end_time, created_at, updated_at) VALUES (:id, :mentor_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("create availability window: %w", err)
	}
	return nil
}

// Update rewrites the day and time range of a window the mentor owns.
func (r *AvailabilityRepository) Update(ctx context.Context, window *models.AvailabilityWindow) error {
	window.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_windows SET day_of_week = $1, start_time = $2, end_time = $3, updated_at = $4 WHERE id = $5 AND mentor_id = $6`
	res, err := r.db.ExecContext(ctx, query, window.DayOfWeek, window.StartTime, window.EndTime, window.UpdatedAt, window.ID, window.MentorID)
	if err != nil {
		return fmt.Errorf("update availability window: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a window the mentor owns.
func (r *AvailabilityRepository) Delete(ctx context.Context, id, mentorID string) error {
	const query = `DELETE FROM availability_windows WHERE id = $1 AND mentor_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, mentorID)
	if err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
