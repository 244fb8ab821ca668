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
	"github.com/stretchr/testify/require"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "subject", "teacher_id", "class_group_id", "room", "day_of_week", "start_minute", "duration_minutes", "session_type", "cycle", "created_at", "updated_at"})
}

func TestSessionRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	rows := sessionRows().
		AddRow("s1", "Mathematiques", "t1", "c1", "Salle 101", "MONDAY", 540, 60, "LECTURE", "", time.Now(), time.Now()).
		AddRow("s2", "Histoire", "t2", "c2", "Salle 102", "TUESDAY", 600, 90, "TUTORIAL", "cycle-2", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject, teacher_id, class_group_id, room, day_of_week, start_minute, duration_minutes, session_type, cycle, created_at, updated_at FROM sessions ORDER BY created_at ASC, id ASC")).
		WillReturnRows(rows)

	sessions, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "s1", sessions[0].ID)
	require.Equal(t, models.DayTuesday, sessions[1].Day)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		ID:              "s1",
		Subject:         "Mathematiques",
		TeacherID:       "t1",
		ClassGroupID:    "c1",
		Room:            "Salle 101",
		Day:             models.DayMonday,
		StartMinute:     540,
		DurationMinutes: 60,
		SessionType:     models.SessionLecture,
	}
	require.NoError(t, repo.Create(context.Background(), session))
	require.False(t, session.CreatedAt.IsZero())

	rows := sessionRows().
		AddRow("s1", "Mathematiques", "t1", "c1", "Salle 101", "MONDAY", 540, 60, "LECTURE", "", session.CreatedAt, session.UpdatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject")).
		WithArgs("s1").
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", found.ID)
	require.Equal(t, 540, found.StartMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.Session{
		ID:              "s1",
		Subject:         "Geographie",
		TeacherID:       "t1",
		ClassGroupID:    "c1",
		Room:            "Salle 102",
		Day:             models.DayFriday,
		StartMinute:     840,
		DurationMinutes: 45,
		SessionType:     models.SessionLecture,
	}
	require.NoError(t, repo.Update(context.Background(), session))
	require.False(t, session.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "s1"))

	// Absent rows are not an error.
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Delete(context.Background(), "ghost"))
	require.NoError(t, mock.ExpectationsWereMet())
}
