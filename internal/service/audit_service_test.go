package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecoleplanner/timetable-api/internal/models"
	"github.com/ecoleplanner/timetable-api/internal/timetable"
	appErrors "github.com/ecoleplanner/timetable-api/pkg/errors"
)

type mockPeriodicRepo struct {
	sessions []models.PeriodicSession
	deleted  []string
	failList error
}

func (m *mockPeriodicRepo) ListAll(ctx context.Context) ([]models.PeriodicSession, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]models.PeriodicSession, len(m.sessions))
	copy(out, m.sessions)
	return out, nil
}

func (m *mockPeriodicRepo) ListByEntity(ctx context.Context, entityKey string) ([]models.PeriodicSession, error) {
	var out []models.PeriodicSession
	for _, s := range m.sessions {
		if s.EntityKey == entityKey {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockPeriodicRepo) Create(ctx context.Context, session *models.PeriodicSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *mockPeriodicRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	for i, s := range m.sessions {
		if s.ID == id {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	return nil
}

type mockAlertRepo struct {
	alerts     map[string]models.DuplicateAlert
	upserts    int
	failUpsert error
}

func (m *mockAlertRepo) ListAll(ctx context.Context) ([]models.DuplicateAlert, error) {
	var out []models.DuplicateAlert
	for _, a := range m.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlertRepo) Upsert(ctx context.Context, alert *models.DuplicateAlert) error {
	if m.failUpsert != nil {
		return m.failUpsert
	}
	if m.alerts == nil {
		m.alerts = make(map[string]models.DuplicateAlert)
	}
	m.alerts[alert.ID] = *alert
	m.upserts++
	return nil
}

func newAuditService(periodic *mockPeriodicRepo, alerts *mockAlertRepo) *AuditService {
	return NewAuditService(timetable.NewAlertBook(), periodic, alerts, nil, validator.New(), zap.NewNop())
}

func pdiOccurrence(id, entity, date string) models.PeriodicSession {
	occursOn, _ := time.Parse("2006-01-02", date)
	return models.PeriodicSession{ID: id, EntityKey: entity, Label: "PDI " + entity, OccursOn: occursOn}
}

func TestAuditServiceRunRaisesAlert(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
		pdiOccurrence("p3", "class-6b", "2026-03-03"),
	}}
	alerts := &mockAlertRepo{}
	svc := newAuditService(periodic, alerts)

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "class-cp-a", changed[0].EntityKey)
	assert.Equal(t, models.AlertActive, changed[0].Status)
	assert.Equal(t, 1, alerts.upserts)

	// A second pass over the same data raises nothing new.
	changed, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 1, alerts.upserts)
}

func TestAuditServiceResolveCancelOccurrence(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	alerts := &mockAlertRepo{}
	svc := newAuditService(periodic, alerts)

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	alertID := changed[0].ID

	resolved, err := svc.Resolve(context.Background(), alertID, ResolveAlertRequest{
		Action:       "CANCEL_OCCURRENCE",
		OccurrenceID: "p2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedOccurrenceID)
	assert.Equal(t, "p2", *resolved.ResolvedOccurrenceID)
	assert.Contains(t, periodic.deleted, "p2")

	// The next sweep sees only one occurrence and stays quiet.
	changed, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestAuditServiceResolveAllowException(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	alerts := &mockAlertRepo{}
	svc := newAuditService(periodic, alerts)

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	alertID := changed[0].ID

	resolved, err := svc.Resolve(context.Background(), alertID, ResolveAlertRequest{Action: "allow_exception"})
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	assert.Empty(t, periodic.deleted)

	// Both occurrences stand; the resolved alert keeps later sweeps quiet.
	changed, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed)

	// A third occurrence in the same week reopens the case.
	require.NoError(t, periodic.Create(context.Background(), &models.PeriodicSession{ID: "p3", EntityKey: "class-cp-a", Label: "PDI", OccursOn: changed0Date()}))
	changed, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.NotEqual(t, alertID, changed[0].ID)
	assert.Equal(t, models.AlertActive, changed[0].Status)
}

func changed0Date() time.Time {
	d, _ := time.Parse("2006-01-02", "2026-03-06")
	return d
}

func TestAuditServiceResolveIdempotent(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	alerts := &mockAlertRepo{}
	svc := newAuditService(periodic, alerts)

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	alertID := changed[0].ID

	_, err = svc.Resolve(context.Background(), alertID, ResolveAlertRequest{Action: "ALLOW_EXCEPTION"})
	require.NoError(t, err)
	upsertsAfterFirst := alerts.upserts

	again, err := svc.Resolve(context.Background(), alertID, ResolveAlertRequest{Action: "CANCEL_OCCURRENCE", OccurrenceID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, again.Status)
	assert.Equal(t, upsertsAfterFirst, alerts.upserts)
	assert.Empty(t, periodic.deleted)
}

func TestAuditServiceResolveErrors(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	svc := newAuditService(periodic, &mockAlertRepo{})

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	alertID := changed[0].ID

	_, err = svc.Resolve(context.Background(), "ghost", ResolveAlertRequest{Action: "ALLOW_EXCEPTION"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.Resolve(context.Background(), alertID, ResolveAlertRequest{Action: "SHRUG"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	// Cancelling an occurrence outside the alert is rejected.
	_, err = svc.Resolve(context.Background(), alertID, ResolveAlertRequest{Action: "CANCEL_OCCURRENCE", OccurrenceID: "p9"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAuditServiceBootstrapRestoresSuppression(t *testing.T) {
	action := models.ResolutionAllowException
	persisted := models.DuplicateAlert{
		ID:        "a1",
		EntityKey: "class-cp-a",
		ISOYear:   2026,
		ISOWeek:   10,
		Occurrences: []models.AlertOccurrence{
			{SessionID: "p1", OccursOn: mustDate("2026-03-02")},
			{SessionID: "p2", OccursOn: mustDate("2026-03-04")},
		},
		Status:           models.AlertResolved,
		ResolutionAction: &action,
	}
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	alerts := &mockAlertRepo{alerts: map[string]models.DuplicateAlert{"a1": persisted}}
	svc := newAuditService(periodic, alerts)

	require.NoError(t, svc.Bootstrap(context.Background()))

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestAuditServiceCreatePeriodicSessionAdvisory(t *testing.T) {
	periodic := &mockPeriodicRepo{}
	svc := newAuditService(periodic, &mockAlertRepo{})

	first, alert, err := svc.CreatePeriodicSession(context.Background(), CreatePeriodicSessionRequest{
		EntityKey: "class-cp-a",
		Label:     "PDI lecture",
		OccursOn:  "2026-03-02",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Nil(t, alert)

	second, alert, err := svc.CreatePeriodicSession(context.Background(), CreatePeriodicSessionRequest{
		EntityKey: "class-cp-a",
		Label:     "PDI lecture",
		OccursOn:  "2026-03-04",
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "class-cp-a", alert.EntityKey)
	require.Len(t, alert.Occurrences, 2)
	assert.Equal(t, first.ID, alert.Occurrences[0].SessionID)
	assert.Equal(t, second.ID, alert.Occurrences[1].SessionID)

	_, _, err = svc.CreatePeriodicSession(context.Background(), CreatePeriodicSessionRequest{
		EntityKey: "class-cp-a",
		Label:     "PDI lecture",
		OccursOn:  "not-a-date",
	})
	require.Error(t, err)
}

func TestAuditServiceDeletePeriodicSessionRefreshes(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	svc := newAuditService(periodic, &mockAlertRepo{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.DeletePeriodicSession(context.Background(), "p2"))
	assert.Contains(t, periodic.deleted, "p2")

	active, err := svc.Alerts("ACTIVE")
	require.NoError(t, err)
	// The raised alert stays on record until a supervisor resolves it.
	require.Len(t, active, 1)
}

func TestAuditServiceAlertsFilter(t *testing.T) {
	periodic := &mockPeriodicRepo{sessions: []models.PeriodicSession{
		pdiOccurrence("p1", "class-cp-a", "2026-03-02"),
		pdiOccurrence("p2", "class-cp-a", "2026-03-04"),
	}}
	svc := newAuditService(periodic, &mockAlertRepo{})

	changed, err := svc.Run(context.Background())
	require.NoError(t, err)
	alertID := changed[0].ID

	active, err := svc.Alerts("active")
	require.NoError(t, err)
	require.Len(t, active, 1)

	resolved, err := svc.Alerts("RESOLVED")
	require.NoError(t, err)
	assert.Empty(t, resolved)

	_, err = svc.Alerts("stale")
	require.Error(t, err)

	got, err := svc.GetAlert(alertID)
	require.NoError(t, err)
	assert.Equal(t, alertID, got.ID)

	_, err = svc.GetAlert("ghost")
	require.Error(t, err)
}

func TestAuditServiceRunPropagatesRepoFailure(t *testing.T) {
	periodic := &mockPeriodicRepo{failList: errors.New("connection reset")}
	svc := newAuditService(periodic, &mockAlertRepo{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
}

func mustDate(value string) time.Time {
	d, _ := time.Parse("2006-01-02", value)
	return d
}
