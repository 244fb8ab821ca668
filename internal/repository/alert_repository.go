package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

// AlertRepository persists duplicate alerts so resolutions survive restarts.
// Occurrence lists are stored as JSON.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListAll returns every alert with occurrences decoded.
func (r *AlertRepository) ListAll(ctx context.Context) ([]models.DuplicateAlert, error) {
	const query = `SELECT id, entity_key, iso_year, iso_week, occurrences, status, resolution_action, resolved_occurrence_id, created_at, updated_at FROM duplicate_alerts ORDER BY created_at ASC, id ASC`
	var alerts []models.DuplicateAlert
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, fmt.Errorf("list duplicate alerts: %w", err)
	}
	for i := range alerts {
		if err := decodeOccurrences(&alerts[i]); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// Upsert inserts a new alert or replaces the stored state of an existing
// one, keyed by id.
func (r *AlertRepository) Upsert(ctx context.Context, alert *models.DuplicateAlert) error {
	raw, err := json.Marshal(alert.Occurrences)
	if err != nil {
		return fmt.Errorf("encode alert occurrences: %w", err)
	}
	alert.OccurrencesRaw = raw

	const query = `
INSERT INTO duplicate_alerts (id, entity_key, iso_year, iso_week, occurrences, status, resolution_action, resolved_occurrence_id, created_at, updated_at)
VALUES (:id, :entity_key, :iso_year, :iso_week, :occurrences, :status, :resolution_action, :resolved_occurrence_id, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE
SET occurrences = EXCLUDED.occurrences,
    status = EXCLUDED.status,
    resolution_action = EXCLUDED.resolution_action,
    resolved_occurrence_id = EXCLUDED.resolved_occurrence_id,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("upsert duplicate alert: %w", err)
	}
	return nil
}

func decodeOccurrences(alert *models.DuplicateAlert) error {
	if len(alert.OccurrencesRaw) == 0 {
		return nil
	}
	if err := json.Unmarshal(alert.OccurrencesRaw, &alert.Occurrences); err != nil {
		return fmt.Errorf("decode occurrences for alert %s: %w", alert.ID, err)
	}
	return nil
}
