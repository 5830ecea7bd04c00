package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

const (
	reservationColumns = "id, session_id, mentee_id, reservation_date, start_time, end_time, status, question, expires_at, paid_at, reject_reason, room_id, created_at, updated_at"

	reservationDetailColumns = "r.id, r.session_id, r.mentee_id, r.reservation_date, r.start_time, r.end_time, r.status, r.question, r.expires_at, r.paid_at, r.reject_reason, r.room_id, r.created_at, r.updated_at, s.mentor_id, s.title AS session_title, s.price"

	slotHoldingPredicate = "status IN ('PENDING', 'CONFIRMED', 'PROGRESS', 'COMPLETED')"

	activeSlotIndex = "ux_reservations_active_slot"

	wallClockLayout = "2006-01-02 15:04:05"
)

// ReservationRepository persists reservations and runs the time-driven sweeps.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) ext(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a PENDING hold. The partial unique index on the slot makes
// the insert a no-op when another live reservation holds it, reported as
// ErrSlotConflict.
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = res.CreatedAt

	query := `INSERT INTO reservations (id, session_id, mentee_id, reservation_date, start_time, end_time, status, question, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, reservation_date, start_time, end_time) WHERE ` + slotHoldingPredicate + ` DO NOTHING`
	result, err := r.db.ExecContext(ctx, query,
		res.ID,
		res.SessionID,
		res.MenteeID,
		res.DateString(),
		res.StartTime,
		res.EndTime,
		res.Status,
		res.Question,
		res.ExpiresAt,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeSlotIndex) {
			return ErrSlotConflict
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create reservation rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSlotConflict
	}
	return nil
}

// FindActiveBySlot returns the live reservation holding slot, if any.
func (r *ReservationRepository) FindActiveBySlot(ctx context.Context, slot models.Slot) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE session_id = $1 AND reservation_date = $2 AND start_time = $3 AND end_time = $4 AND ` + slotHoldingPredicate + ` LIMIT 1`
	var res models.Reservation
	if err := r.db.GetContext(ctx, &res, query, slot.SessionID, slot.Date, slot.StartTime, slot.EndTime); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTaken returns reservations on a session date that still hold their slot.
func (r *ReservationRepository) ListTaken(ctx context.Context, sessionID, date string) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE session_id = $1 AND reservation_date = $2 AND ` + slotHoldingPredicate + ` ORDER BY start_time ASC`
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, sessionID, date); err != nil {
		return nil, fmt.Errorf("list taken reservations: %w", err)
	}
	return reservations, nil
}

// FindByID loads a reservation joined with its session.
func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*models.ReservationDetail, error) {
	query := `SELECT ` + reservationDetailColumns + ` FROM reservations r JOIN mentoring_sessions s ON s.id = r.session_id WHERE r.id = $1`
	var detail models.ReservationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByMentee pages a mentee's reservations, newest first.
func (r *ReservationRepository) ListByMentee(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error) {
	base := "FROM reservations r JOIN mentoring_sessions s ON s.id = r.session_id WHERE r.mentee_id = $1"
	args := []interface{}{filter.MenteeID}
	if filter.Status != nil {
		base += fmt.Sprintf(" AND r.status = $%d", len(args)+1)
		args = append(args, *filter.Status)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", reservationDetailColumns, base, size, offset)
	var items []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations by mentee: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations by mentee: %w", err)
	}
	return items, total, nil
}

// ListSchedule returns a mentor's reservations in the filter's date range,
// ordered by when they take place.
func (r *ReservationRepository) ListSchedule(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}
	query := `SELECT ` + reservationDetailColumns + `, COALESCE(u.full_name, '') AS mentee_name
		FROM reservations r
		JOIN mentoring_sessions s ON s.id = r.session_id
		LEFT JOIN users u ON u.id = r.mentee_id
		WHERE s.mentor_id = $1 AND r.reservation_date BETWEEN $2 AND $3 AND r.status = ANY($4)
		ORDER BY r.reservation_date, r.start_time`
	var entries []models.ScheduleEntry
	err := r.db.SelectContext(ctx, &entries, query,
		filter.MentorID,
		filter.From.Format(models.DateLayout),
		filter.To.Format(models.DateLayout),
		pq.Array(statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("list mentor schedule: %w", err)
	}
	return entries, nil
}

// MarkConfirmed moves a PENDING reservation to CONFIRMED. It reports false
// when the row was no longer PENDING.
func (r *ReservationRepository) MarkConfirmed(ctx context.Context, exec sqlx.ExtContext, id string, paidAt time.Time) (bool, error) {
	const query = `UPDATE reservations SET status = 'CONFIRMED', paid_at = $2, updated_at = $2 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.ext(exec).ExecContext(ctx, query, id, paidAt)
	if err != nil {
		return false, fmt.Errorf("confirm reservation: %w", err)
	}
	return affectedOne(res)
}

// UpdateStatus moves a reservation to next when its current status is one of from.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ReservationStatus, next models.ReservationStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("update reservation status: no source status")
	}
	args := []interface{}{id, next, time.Now().UTC()}
	placeholders := make([]string, len(from))
	for i, st := range from {
		args = append(args, st)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1 AND status IN (%s)", strings.Join(placeholders, ", "))
	res, err := r.ext(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update reservation status: %w", err)
	}
	return affectedOne(res)
}

// Reject moves a PENDING reservation to REJECTED with a reason.
func (r *ReservationRepository) Reject(ctx context.Context, id, reason string) (bool, error) {
	const query = `UPDATE reservations SET status = 'REJECTED', reject_reason = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, reason, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reject reservation: %w", err)
	}
	return affectedOne(res)
}

// AttachRoom records the room id once for a paid reservation.
func (r *ReservationRepository) AttachRoom(ctx context.Context, id, roomID string) (bool, error) {
	const query = `UPDATE reservations SET room_id = $2, updated_at = $3 WHERE id = $1 AND room_id IS NULL AND status IN ('CONFIRMED', 'PROGRESS')`
	res, err := r.db.ExecContext(ctx, query, id, roomID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("attach reservation room: %w", err)
	}
	return affectedOne(res)
}

// ExpireHolds moves every PENDING hold whose deadline passed before now to EXPIRED.
func (r *ReservationRepository) ExpireHolds(ctx context.Context, now time.Time) ([]string, error) {
	const query = `UPDATE reservations SET status = 'EXPIRED', updated_at = $1 WHERE status = 'PENDING' AND expires_at < $1 RETURNING id`
	return r.sweep(ctx, "expire holds", query, now.UTC())
}

// StartSessions moves CONFIRMED reservations whose window contains the
// wall-clock instant now (in loc) to PROGRESS.
func (r *ReservationRepository) StartSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error) {
	const query = `UPDATE reservations SET status = 'PROGRESS', updated_at = $2
		WHERE status = 'CONFIRMED'
		AND (reservation_date + start_time::time) <= $1::timestamp
		AND (reservation_date + end_time::time) > $1::timestamp
		RETURNING id`
	return r.sweep(ctx, "start sessions", query, wallClock(now, loc), now.UTC())
}

// CompleteSessions moves PROGRESS reservations, and CONFIRMED ones whose
// whole window elapsed between ticks, to COMPLETED once the end has passed.
func (r *ReservationRepository) CompleteSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error) {
	const query = `UPDATE reservations SET status = 'COMPLETED', updated_at = $2
		WHERE status IN ('PROGRESS', 'CONFIRMED')
		AND (reservation_date + end_time::time) <= $1::timestamp
		RETURNING id`
	return r.sweep(ctx, "complete sessions", query, wallClock(now, loc), now.UTC())
}

func (r *ReservationRepository) sweep(ctx context.Context, name, query string, args ...interface{}) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ids, nil
}

func wallClock(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(wallClockLayout)
}
