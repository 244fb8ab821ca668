package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecoleplanner/timetable-api/internal/models"
	"github.com/ecoleplanner/timetable-api/internal/timetable"
	appErrors "github.com/ecoleplanner/timetable-api/pkg/errors"
	"github.com/ecoleplanner/timetable-api/pkg/jobs"
)

const auditJobType = "weekly-audit"

type periodicSessionRepository interface {
	ListAll(ctx context.Context) ([]models.PeriodicSession, error)
	ListByEntity(ctx context.Context, entityKey string) ([]models.PeriodicSession, error)
	Create(ctx context.Context, session *models.PeriodicSession) error
	Delete(ctx context.Context, id string) error
}

type alertRepository interface {
	ListAll(ctx context.Context) ([]models.DuplicateAlert, error)
	Upsert(ctx context.Context, alert *models.DuplicateAlert) error
}

// CreatePeriodicSessionRequest registers a dated occurrence for the weekly
// uniqueness audit.
type CreatePeriodicSessionRequest struct {
	EntityKey string `json:"entity_key" validate:"required"`
	Label     string `json:"label" validate:"required"`
	OccursOn  string `json:"occurs_on" validate:"required"`
}

// ResolveAlertRequest carries the supervisory decision on a duplicate alert.
type ResolveAlertRequest struct {
	Action       string `json:"action" validate:"required"`
	OccurrenceID string `json:"occurrence_id"`
}

// AuditService runs the weekly uniqueness rule over the periodic session set
// and owns the duplicate alert lifecycle. Sweeps run inline on demand or on a
// background queue when one is started.
type AuditService struct {
	book         *timetable.AlertBook
	periodicRepo periodicSessionRepository
	alertRepo    alertRepository
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	queue        *jobs.Queue
}

// NewAuditService instantiates AuditService.
func NewAuditService(book *timetable.AlertBook, periodicRepo periodicSessionRepository, alertRepo alertRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		book:         book,
		periodicRepo: periodicRepo,
		alertRepo:    alertRepo,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// Bootstrap hydrates the alert book from persisted alerts so resolutions
// survive restarts. Called once at startup before the first sweep.
func (s *AuditService) Bootstrap(ctx context.Context) error {
	alerts, err := s.alertRepo.ListAll(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicate alerts")
	}
	s.book.Seed(alerts)
	s.logger.Info("alert book seeded", zap.Int("alerts", len(alerts)))
	return nil
}

// Run executes one audit pass: it loads the full periodic set, sweeps it
// through the alert book and persists every alert raised or refreshed by the
// pass. Returns the changed alerts.
func (s *AuditService) Run(ctx context.Context) ([]models.DuplicateAlert, error) {
	sessions, err := s.periodicRepo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periodic sessions")
	}

	changed := s.book.Sweep(sessions)
	for i := range changed {
		if err := s.alertRepo.Upsert(ctx, &changed[i]); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist duplicate alert")
		}
	}

	active := len(s.book.List(models.AlertActive))
	s.metrics.ObserveAuditRun(active)
	s.logger.Info("weekly audit completed",
		zap.Int("scanned", len(sessions)),
		zap.Int("changed", len(changed)),
		zap.Int("active_alerts", active))
	return changed, nil
}

// StartWorker starts the background queue that processes enqueued audit
// passes.
func (s *AuditService) StartWorker(ctx context.Context, workers, retries int) {
	s.queue = jobs.NewQueue("weekly-audit", func(jobCtx context.Context, job jobs.Job) error {
		_, err := s.Run(jobCtx)
		return err
	}, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     s.logger,
	})
	s.queue.Start(ctx)
}

// StopWorker drains the background queue.
func (s *AuditService) StopWorker() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// EnqueueAudit schedules an audit pass on the background queue. Falls back to
// an inline pass when no worker is running.
func (s *AuditService) EnqueueAudit(ctx context.Context) error {
	if s.queue == nil {
		_, err := s.Run(ctx)
		return err
	}
	return s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType})
}

// Alerts lists alerts, optionally filtered by status.
func (s *AuditService) Alerts(status string) ([]models.DuplicateAlert, error) {
	filter := models.AlertStatus(strings.ToUpper(status))
	if filter != "" && filter != models.AlertActive && filter != models.AlertResolved {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown alert status %q", status))
	}
	return s.book.List(filter), nil
}

// GetAlert returns one alert by id.
func (s *AuditService) GetAlert(id string) (*models.DuplicateAlert, error) {
	alert, ok := s.book.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
	}
	return &alert, nil
}

// Resolve applies a supervisory action to an alert and persists the outcome.
// Cancelling an occurrence also removes it from the periodic set so the next
// sweep no longer counts it. Resolving an already resolved alert changes
// nothing and succeeds.
func (s *AuditService) Resolve(ctx context.Context, id string, req ResolveAlertRequest) (*models.DuplicateAlert, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	action := models.ResolutionAction(strings.ToUpper(req.Action))

	alert, changed, err := s.book.Resolve(id, action, req.OccurrenceID)
	switch {
	case errors.Is(err, timetable.ErrAlertNotFound):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
	case errors.Is(err, timetable.ErrInvalidResolution):
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid resolution action")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve alert")
	}
	if !changed {
		return &alert, nil
	}

	if action == models.ResolutionCancelOccurrence && alert.ResolvedOccurrenceID != nil {
		if err := s.periodicRepo.Delete(ctx, *alert.ResolvedOccurrenceID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel occurrence")
		}
	}
	if err := s.alertRepo.Upsert(ctx, &alert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist alert resolution")
	}

	s.metrics.ObserveAuditRun(len(s.book.List(models.AlertActive)))
	s.logger.Info("alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("action", string(action)))
	return &alert, nil
}

// CreatePeriodicSession registers a new occurrence and immediately sweeps so
// the caller learns about a duplicate it just introduced. The returned alert
// is advisory; the occurrence is stored either way.
func (s *AuditService) CreatePeriodicSession(ctx context.Context, req CreatePeriodicSessionRequest) (*models.PeriodicSession, *models.DuplicateAlert, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid periodic session payload")
	}
	occursOn, err := time.Parse("2006-01-02", req.OccursOn)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid occurrence date %q", req.OccursOn))
	}

	session := models.PeriodicSession{
		EntityKey: req.EntityKey,
		Label:     req.Label,
		OccursOn:  occursOn,
	}
	if err := s.periodicRepo.Create(ctx, &session); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create periodic session")
	}

	if _, err := s.Run(ctx); err != nil {
		return nil, nil, err
	}
	return &session, s.activeAlertFor(session.EntityKey, occursOn), nil
}

// ListPeriodicSessions returns tracked occurrences, optionally scoped to one
// entity.
func (s *AuditService) ListPeriodicSessions(ctx context.Context, entityKey string) ([]models.PeriodicSession, error) {
	var (
		sessions []models.PeriodicSession
		err      error
	)
	if entityKey != "" {
		sessions, err = s.periodicRepo.ListByEntity(ctx, entityKey)
	} else {
		sessions, err = s.periodicRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periodic sessions")
	}
	return sessions, nil
}

// DeletePeriodicSession removes an occurrence and refreshes the alert state.
func (s *AuditService) DeletePeriodicSession(ctx context.Context, id string) error {
	if err := s.periodicRepo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete periodic session")
	}
	_, err := s.Run(ctx)
	return err
}

func (s *AuditService) activeAlertFor(entityKey string, occursOn time.Time) *models.DuplicateAlert {
	bucket := timetable.BucketOf(occursOn)
	for _, alert := range s.book.List(models.AlertActive) {
		if alert.EntityKey == entityKey && alert.ISOYear == bucket.Year && alert.ISOWeek == bucket.Week {
			a := alert
			return &a
		}
	}
	return nil
}
