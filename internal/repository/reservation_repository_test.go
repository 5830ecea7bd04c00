package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var reservationRowColumns = []string{"id", "session_id", "mentee_id", "reservation_date", "start_time", "end_time", "status", "question", "expires_at", "paid_at", "reject_reason", "room_id", "created_at", "updated_at"}

func pendingReservation() *models.Reservation {
	expires := time.Date(2025, 7, 1, 10, 10, 0, 0, time.UTC)
	return &models.Reservation{
		SessionID: "session-1",
		MenteeID:  "mentee-1",
		Date:      time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC),
		StartTime: "14:00",
		EndTime:   "15:00",
		Status:    models.ReservationPending,
		Question:  "career advice",
		ExpiresAt: &expires,
	}
}

func TestReservationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations") + ".*ON CONFLICT \\(session_id, reservation_date, start_time, end_time\\) WHERE status IN .* DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "session-1", "mentee-1", "2025-07-08", "14:00", "15:00", models.ReservationPending, "career advice", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := pendingReservation()
	require.NoError(t, repo.Create(context.Background(), res))
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryCreateConflictOnNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), pendingReservation())
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryCreateConflictOnUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ux_reservations_active_slot"})

	err := repo.Create(context.Background(), pendingReservation())
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestReservationRepositoryCreateOtherError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), pendingReservation())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotConflict))
}

func TestReservationRepositoryListTaken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(reservationRowColumns).
		AddRow("res-1", "session-1", "mentee-1", time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC), "14:00", "15:00", "PENDING", "", now, nil, nil, nil, now, now)
	mock.ExpectQuery("SELECT .* FROM reservations\\s+WHERE session_id = \\$1 AND reservation_date = \\$2 AND status IN \\('PENDING', 'CONFIRMED', 'PROGRESS', 'COMPLETED'\\)").
		WithArgs("session-1", "2025-07-08").
		WillReturnRows(rows)

	taken, err := repo.ListTaken(context.Background(), "session-1", "2025-07-08")
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Equal(t, "14:00", taken[0].StartTime)
	assert.Equal(t, models.ReservationPending, taken[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryFindActiveBySlotNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery("SELECT .* FROM reservations").
		WithArgs("session-1", "2025-07-08", "14:00", "15:00").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveBySlot(context.Background(), models.Slot{SessionID: "session-1", Date: "2025-07-08", StartTime: "14:00", EndTime: "15:00"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReservationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	cols := append(append([]string{}, reservationRowColumns...), "mentor_id", "session_title", "price")
	rows := sqlmock.NewRows(cols).
		AddRow("res-1", "session-1", "mentee-1", time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC), "14:00", "15:00", "CONFIRMED", "q", nil, now, nil, "room-1", now, now, "mentor-1", "Go review", int64(30000))
	mock.ExpectQuery("SELECT .* FROM reservations r JOIN mentoring_sessions s ON s.id = r.session_id WHERE r.id = \\$1").
		WithArgs("res-1").
		WillReturnRows(rows)

	detail, err := repo.FindByID(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "mentor-1", detail.MentorID)
	assert.Equal(t, int64(30000), detail.Price)
	assert.Equal(t, models.ReservationConfirmed, detail.Status)
	require.NotNil(t, detail.RoomID)
	assert.Equal(t, "room-1", *detail.RoomID)
}

func TestReservationRepositoryListByMentee(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	cols := append(append([]string{}, reservationRowColumns...), "mentor_id", "session_title", "price")
	rows := sqlmock.NewRows(cols).
		AddRow("res-2", "session-1", "mentee-1", now, "10:00", "11:00", "PENDING", "", now, nil, nil, nil, now, now, "mentor-1", "Go", int64(1000))
	mock.ExpectQuery("SELECT .* FROM reservations r JOIN mentoring_sessions s ON s.id = r.session_id WHERE r.mentee_id = \\$1 ORDER BY r.created_at DESC LIMIT 10 OFFSET 10").
		WithArgs("mentee-1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reservations r").
		WithArgs("mentee-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.ListByMentee(context.Background(), models.ReservationFilter{MenteeID: "mentee-1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryMarkConfirmedConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	paidAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = 'CONFIRMED', paid_at = $2, updated_at = $2 WHERE id = $1 AND status = 'PENDING'")).
		WithArgs("res-1", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = 'CONFIRMED'")).
		WithArgs("res-1", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkConfirmed(context.Background(), nil, "res-1", paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkConfirmed(context.Background(), nil, "res-1", paidAt)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1 AND status IN ($4, $5)")).
		WithArgs("res-1", models.ReservationCancelled, sqlmock.AnyArg(), models.ReservationPending, models.ReservationConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateStatus(context.Background(), nil, "res-1",
		[]models.ReservationStatus{models.ReservationPending, models.ReservationConfirmed}, models.ReservationCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.UpdateStatus(context.Background(), nil, "res-1", nil, models.ReservationCancelled)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryRejectAndAttachRoom(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = 'REJECTED', reject_reason = $2")).
		WithArgs("res-1", "mentor unavailable", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET room_id = $2, updated_at = $3 WHERE id = $1 AND room_id IS NULL")).
		WithArgs("res-2", "room-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Reject(context.Background(), "res-1", "mentor unavailable")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AttachRoom(context.Background(), "res-2", "room-9")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositorySweeps(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	now := time.Date(2025, 7, 8, 6, 1, 0, 0, time.UTC) // 15:01 in Seoul

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE reservations SET status = 'EXPIRED', updated_at = $1 WHERE status = 'PENDING' AND expires_at < $1 RETURNING id")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-1").AddRow("res-2"))
	mock.ExpectQuery("UPDATE reservations SET status = 'PROGRESS'.*WHERE status = 'CONFIRMED'.*RETURNING id").
		WithArgs("2025-07-08 15:01:00", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("UPDATE reservations SET status = 'COMPLETED'.*WHERE status IN \\('PROGRESS', 'CONFIRMED'\\).*RETURNING id").
		WithArgs("2025-07-08 15:01:00", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-3"))

	expired, err := repo.ExpireHolds(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"res-1", "res-2"}, expired)

	started, err := repo.StartSessions(context.Background(), now, seoul)
	require.NoError(t, err)
	assert.Empty(t, started)

	completed, err := repo.CompleteSessions(context.Background(), now, seoul)
	require.NoError(t, err)
	assert.Equal(t, []string{"res-3"}, completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositorySweepError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery("UPDATE reservations SET status = 'EXPIRED'").
		WillReturnError(errors.New("deadlock detected"))

	_, err := repo.ExpireHolds(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire holds")
}

func TestReservationRepositoryListSchedule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	cols := append(append([]string{}, reservationRowColumns...), "mentor_id", "session_title", "price", "mentee_name")
	rows := sqlmock.NewRows(cols).
		AddRow("res-1", "session-1", "mentee-1", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), "10:00", "11:00", "CONFIRMED", "", nil, now, nil, nil, now, now, "mentor-1", "Go review", int64(30000), "Kim Minsu").
		AddRow("res-2", "session-1", "mentee-2", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "14:00", "15:00", "COMPLETED", "", nil, now, nil, nil, now, now, "mentor-1", "Go review", int64(30000), "")
	mock.ExpectQuery("SELECT .* FROM reservations r\\s+JOIN mentoring_sessions s ON s.id = r.session_id\\s+LEFT JOIN users u .* WHERE s.mentor_id = \\$1 AND r.reservation_date BETWEEN \\$2 AND \\$3 AND r.status = ANY\\(\\$4\\)").
		WithArgs("mentor-1", "2026-03-09", "2026-03-15", pq.Array([]string{"CONFIRMED", "COMPLETED"})).
		WillReturnRows(rows)

	entries, err := repo.ListSchedule(context.Background(), models.ScheduleFilter{
		MentorID: "mentor-1",
		From:     time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Statuses: []models.ReservationStatus{models.ReservationConfirmed, models.ReservationCompleted},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Kim Minsu", entries[0].MenteeName)
	assert.Equal(t, "Go review", entries[1].SessionTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
