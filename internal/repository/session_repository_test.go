package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	query := regexp.QuoteMeta("SELECT id, mentor_id, title, description, price, duration, public, created_at, updated_at FROM mentoring_sessions WHERE id = $1")
	now := time.Now()
	mock.ExpectQuery(query).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentor_id", "title", "description", "price", "duration", "public", "created_at", "updated_at"}).
			AddRow("session-1", "mentor-1", "Go code review", "", int64(30000), 60, true, now, now))

	session, err := repo.FindByID(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "mentor-1", session.MentorID)
	assert.Equal(t, int64(30000), session.Price)
	assert.Equal(t, 60, session.Duration)

	mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
