package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

func newAuditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPeriodicSessionRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewPeriodicSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO periodic_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.PeriodicSession{
		EntityKey: "class-cp-a",
		Label:     "PDI lecture",
		OccursOn:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), session))
	require.NotEmpty(t, session.ID)
	require.False(t, session.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodicSessionRepositoryListByEntity(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewPeriodicSessionRepository(db)
	rows := sqlmock.NewRows([]string{"id", "entity_key", "label", "occurs_on", "created_at"}).
		AddRow("p1", "class-cp-a", "PDI lecture", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Now()).
		AddRow("p2", "class-cp-a", "PDI lecture", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_key, label, occurs_on, created_at FROM periodic_sessions WHERE entity_key = $1")).
		WithArgs("class-cp-a").
		WillReturnRows(rows)

	sessions, err := repo.ListByEntity(context.Background(), "class-cp-a")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "p1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodicSessionRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewPeriodicSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM periodic_sessions WHERE id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "p1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryUpsertEncodesOccurrences(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO duplicate_alerts")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	alert := &models.DuplicateAlert{
		ID:        "a1",
		EntityKey: "class-cp-a",
		ISOYear:   2026,
		ISOWeek:   10,
		Occurrences: []models.AlertOccurrence{
			{SessionID: "p1", OccursOn: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
			{SessionID: "p2", OccursOn: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		},
		Status:    models.AlertActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Upsert(context.Background(), alert))
	require.NotEmpty(t, alert.OccurrencesRaw)
	require.Contains(t, string(alert.OccurrencesRaw), "p1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryListAllDecodesOccurrences(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	raw := `[{"session_id":"p1","occurs_on":"2026-03-02T00:00:00Z"},{"session_id":"p2","occurs_on":"2026-03-04T00:00:00Z"}]`
	rows := sqlmock.NewRows([]string{"id", "entity_key", "iso_year", "iso_week", "occurrences", "status", "resolution_action", "resolved_occurrence_id", "created_at", "updated_at"}).
		AddRow("a1", "class-cp-a", 2026, 10, []byte(raw), "RESOLVED", "ALLOW_EXCEPTION", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_key, iso_year, iso_week, occurrences, status, resolution_action, resolved_occurrence_id, created_at, updated_at FROM duplicate_alerts")).
		WillReturnRows(rows)

	alerts, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, models.AlertResolved, alerts[0].Status)
	require.Len(t, alerts[0].Occurrences, 2)
	require.Equal(t, "p2", alerts[0].Occurrences[1].SessionID)
	require.NotNil(t, alerts[0].ResolutionAction)
	require.Equal(t, models.ResolutionAllowException, *alerts[0].ResolutionAction)
	require.NoError(t, mock.ExpectationsWereMet())
}
