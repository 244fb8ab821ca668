package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

// PeriodicSessionRepository persists the dated occurrences policed by the
// weekly uniqueness rule.
type PeriodicSessionRepository struct {
	db *sqlx.DB
}

// NewPeriodicSessionRepository creates a new periodic session repository.
func NewPeriodicSessionRepository(db *sqlx.DB) *PeriodicSessionRepository {
	return &PeriodicSessionRepository{db: db}
}

// ListAll returns every tracked occurrence ordered by date.
func (r *PeriodicSessionRepository) ListAll(ctx context.Context) ([]models.PeriodicSession, error) {
	const query = `SELECT id, entity_key, label, occurs_on, created_at FROM periodic_sessions ORDER BY occurs_on ASC, id ASC`
	var sessions []models.PeriodicSession
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list periodic sessions: %w", err)
	}
	return sessions, nil
}

// ListByEntity returns the occurrences tracked for one entity.
func (r *PeriodicSessionRepository) ListByEntity(ctx context.Context, entityKey string) ([]models.PeriodicSession, error) {
	const query = `SELECT id, entity_key, label, occurs_on, created_at FROM periodic_sessions WHERE entity_key = $1 ORDER BY occurs_on ASC, id ASC`
	var sessions []models.PeriodicSession
	if err := r.db.SelectContext(ctx, &sessions, query, entityKey); err != nil {
		return nil, fmt.Errorf("list periodic sessions by entity: %w", err)
	}
	return sessions, nil
}

// FindByID loads one occurrence by id.
func (r *PeriodicSessionRepository) FindByID(ctx context.Context, id string) (*models.PeriodicSession, error) {
	const query = `SELECT id, entity_key, label, occurs_on, created_at FROM periodic_sessions WHERE id = $1`
	var session models.PeriodicSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create stores a new occurrence.
func (r *PeriodicSessionRepository) Create(ctx context.Context, session *models.PeriodicSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO periodic_sessions (id, entity_key, label, occurs_on, created_at) VALUES (:id, :entity_key, :label, :occurs_on, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create periodic session: %w", err)
	}
	return nil
}

// Delete removes an occurrence by id. Unknown ids are a no-op.
func (r *PeriodicSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM periodic_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete periodic session: %w", err)
	}
	return nil
}
