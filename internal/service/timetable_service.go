package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ecoleplanner/timetable-api/internal/models"
	"github.com/ecoleplanner/timetable-api/internal/timetable"
	appErrors "github.com/ecoleplanner/timetable-api/pkg/errors"
)

type sessionRepository interface {
	ListAll(ctx context.Context) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
}

type projectionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateSessionRequest describes payload for scheduling a session.
type CreateSessionRequest struct {
	Subject         string `json:"subject" validate:"required"`
	TeacherID       string `json:"teacher_id" validate:"required"`
	ClassGroupID    string `json:"class_group_id" validate:"required"`
	Room            string `json:"room" validate:"required"`
	Day             string `json:"day_of_week" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	SessionType     string `json:"session_type" validate:"required"`
	Cycle           string `json:"cycle"`
}

// UpdateSessionRequest replaces an existing session's slot and resources.
type UpdateSessionRequest struct {
	Subject         string `json:"subject" validate:"required"`
	TeacherID       string `json:"teacher_id" validate:"required"`
	ClassGroupID    string `json:"class_group_id" validate:"required"`
	Room            string `json:"room" validate:"required"`
	Day             string `json:"day_of_week" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	SessionType     string `json:"session_type" validate:"required"`
	Cycle           string `json:"cycle"`
}

// TimetableService composes the in-memory scheduling core with the durable
// record and the projection cache. The store is the single gate for every
// mutation: no caller can commit a conflicting session by skipping a check.
type TimetableService struct {
	store     *timetable.Store
	repo      sessionRepository
	cache     projectionCache
	metrics   *MetricsService
	validator *validator.Validate
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(store *timetable.Store, repo sessionRepository, cache projectionCache, metrics *MetricsService, validate *validator.Validate, cacheTTL time.Duration, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		store:     store,
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Load hydrates the authoritative store from the durable record. Called once
// at startup before the HTTP surface accepts traffic.
func (s *TimetableService) Load(ctx context.Context) error {
	sessions, err := s.repo.ListAll(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	s.store.Load(sessions)
	s.metrics.SetStoredSessions(s.store.Len())
	s.logger.Info("timetable loaded", zap.Int("sessions", len(sessions)))
	return nil
}

// List returns sessions matching the filter with pagination metadata.
func (s *TimetableService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions := s.store.Snapshot()

	var matched []models.Session
	for _, sess := range sessions {
		if filter.Day != "" && string(sess.Day) != strings.ToUpper(filter.Day) {
			continue
		}
		if filter.ClassGroupID != "" && sess.ClassGroupID != filter.ClassGroupID {
			continue
		}
		if filter.TeacherID != "" && sess.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Room != "" && !strings.EqualFold(sess.Room, filter.Room) {
			continue
		}
		matched = append(matched, sess)
	}
	sortSessions(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(matched)}
	return matched[start:end], pagination, nil
}

// Get returns one session by id.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return &session, nil
}

// Create commits a new session unless it collides with the committed set. A
// rejection returns the full conflict list so the caller can adjust and
// retry; the store is left untouched.
func (s *TimetableService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	candidate, err := s.buildSession(req.Subject, req.TeacherID, req.ClassGroupID, req.Room, req.Day, req.StartTime, req.DurationMinutes, req.SessionType, req.Cycle)
	if err != nil {
		return nil, err
	}

	committed, conflicts, err := s.store.Add(candidate)
	if err != nil {
		return nil, s.wrapStoreError(err)
	}
	if len(conflicts) > 0 {
		s.metrics.ObserveMutation("create", true)
		s.metrics.ObserveConflicts(len(conflicts))
		return nil, conflictRejection(conflicts)
	}

	if err := s.repo.Create(ctx, &committed); err != nil {
		s.store.Remove(committed.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record session")
	}
	// The repository stamped timestamps on the durable copy; reconcile the
	// in-memory one so subsequent reads agree.
	if _, _, err := s.store.Update(committed.ID, committed); err != nil {
		s.logger.Warn("failed to reconcile committed session", zap.String("id", committed.ID), zap.Error(err))
	}

	s.invalidateProjections(ctx)
	s.metrics.ObserveMutation("create", false)
	s.metrics.SetStoredSessions(s.store.Len())
	return &committed, nil
}

// Update replaces an existing session, re-running detection with the session
// itself excluded so it never conflicts with its own previous slot.
func (s *TimetableService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	previous, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}

	candidate, err := s.buildSession(req.Subject, req.TeacherID, req.ClassGroupID, req.Room, req.Day, req.StartTime, req.DurationMinutes, req.SessionType, req.Cycle)
	if err != nil {
		return nil, err
	}
	candidate.CreatedAt = previous.CreatedAt

	updated, conflicts, err := s.store.Update(id, candidate)
	if err != nil {
		return nil, s.wrapStoreError(err)
	}
	if len(conflicts) > 0 {
		s.metrics.ObserveMutation("update", true)
		s.metrics.ObserveConflicts(len(conflicts))
		return nil, conflictRejection(conflicts)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if _, _, rollbackErr := s.store.Update(id, previous); rollbackErr != nil {
			s.logger.Error("failed to roll back session update", zap.String("id", id), zap.Error(rollbackErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record session update")
	}

	s.invalidateProjections(ctx)
	s.metrics.ObserveMutation("update", false)
	return &updated, nil
}

// Delete removes a session. Removal can only resolve conflicts, so there is
// no validation, and deleting an absent id is a no-op.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	if s.store.Remove(id) {
		s.invalidateProjections(ctx)
		s.metrics.ObserveMutation("delete", false)
		s.metrics.SetStoredSessions(s.store.Len())
	}
	return nil
}

// ByClassGroup returns the class timetable projection, read through the
// cache when one is configured.
func (s *TimetableService) ByClassGroup(ctx context.Context, classGroupID string) ([]models.Session, error) {
	return s.projection(ctx, fmt.Sprintf("timetable:class:%s", classGroupID), func() []models.Session {
		return s.store.ByClassGroup(classGroupID)
	})
}

// ByTeacher returns the teacher timetable projection.
func (s *TimetableService) ByTeacher(ctx context.Context, teacherID string) ([]models.Session, error) {
	return s.projection(ctx, fmt.Sprintf("timetable:teacher:%s", teacherID), func() []models.Session {
		return s.store.ByTeacher(teacherID)
	})
}

// ByDay returns the sessions scheduled on one day.
func (s *TimetableService) ByDay(ctx context.Context, day string) ([]models.Session, error) {
	d := models.Day(strings.ToUpper(day))
	if !d.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", day))
	}
	sessions := s.store.ByDay(d)
	sortSessions(sessions)
	return sessions, nil
}

func (s *TimetableService) buildSession(subject, teacherID, classGroupID, room, day, startTime string, durationMinutes int, sessionType, cycle string) (models.Session, error) {
	startMinute, err := models.ParseClockMinute(startTime)
	if err != nil {
		return models.Session{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	kind := models.SessionType(strings.ToUpper(sessionType))
	if !kind.Valid() {
		return models.Session{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session type %q", sessionType))
	}

	now := time.Now().UTC()
	return models.Session{
		Subject:         subject,
		TeacherID:       teacherID,
		ClassGroupID:    classGroupID,
		Room:            room,
		Day:             models.Day(strings.ToUpper(day)),
		StartMinute:     startMinute,
		DurationMinutes: durationMinutes,
		SessionType:     kind,
		Cycle:           cycle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *TimetableService) wrapStoreError(err error) error {
	switch {
	case errors.Is(err, timetable.ErrInvalidInterval):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session interval")
	case errors.Is(err, timetable.ErrNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable store failure")
	}
}

func (s *TimetableService) projection(ctx context.Context, key string, load func() []models.Session) ([]models.Session, error) {
	if s.cache != nil {
		var cached []models.Session
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("projection cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	sessions := load()
	sortSessions(sessions)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, sessions, s.cacheTTL); err != nil {
			s.logger.Warn("projection cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return sessions, nil
}

func (s *TimetableService) invalidateProjections(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "timetable:*"); err != nil {
		s.logger.Warn("projection cache invalidation failed", zap.Error(err))
	}
}

func conflictRejection(conflicts []models.Conflict) error {
	domainErr := &models.TimetableConflictError{Conflicts: conflicts}
	appErr := appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "session conflicts with the committed timetable")
	return appErr.WithDetails(conflicts)
}

var dayOrder = func() map[models.Day]int {
	order := make(map[models.Day]int, len(models.Days))
	for i, d := range models.Days {
		order[d] = i
	}
	return order
}()

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if dayOrder[sessions[i].Day] != dayOrder[sessions[j].Day] {
			return dayOrder[sessions[i].Day] < dayOrder[sessions[j].Day]
		}
		if sessions[i].StartMinute != sessions[j].StartMinute {
			return sessions[i].StartMinute < sessions[j].StartMinute
		}
		return sessions[i].ID < sessions[j].ID
	})
}
