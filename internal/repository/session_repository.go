package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

// SessionRepository reads the mentoring session catalog.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.MentoringSession, error) {
	const query = `SELECT id, mentor_id, title, description, price, duration, public, created_at, updated_at FROM mentoring_sessions WHERE id = $1`
	var session models.MentoringSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}
