package timetable

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

var (
	// ErrAlertNotFound is returned when resolving an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrInvalidResolution marks an unsupported action or a cancel request
	// naming an occurrence outside the alert.
	ErrInvalidResolution = errors.New("invalid resolution")
)

// WeekBucket identifies an ISO-8601 calendar week. ISO weeks start on
// Monday, matching the institution's calendar: a Sunday 23:59 occurrence and
// one the following Monday 00:01 land in different buckets.
type WeekBucket struct {
	Year int
	Week int
}

// BucketOf returns the week bucket a date belongs to.
func BucketOf(t time.Time) WeekBucket {
	year, week := t.ISOWeek()
	return WeekBucket{Year: year, Week: week}
}

// FindDuplicates groups periodic sessions by (entity key, week bucket) and
// returns one active alert per group with more than one member. Occurrences
// inside an alert are ordered by date then id, and alerts by entity key then
// bucket, so repeated passes over the same input produce identical output.
// The function never mutates session data; it only reports.
func FindDuplicates(sessions []models.PeriodicSession) []models.DuplicateAlert {
	type groupKey struct {
		entity string
		bucket WeekBucket
	}
	groups := make(map[groupKey][]models.AlertOccurrence)
	for _, s := range sessions {
		key := groupKey{entity: s.EntityKey, bucket: BucketOf(s.OccursOn)}
		groups[key] = append(groups[key], models.AlertOccurrence{SessionID: s.ID, OccursOn: s.OccursOn})
	}

	var alerts []models.DuplicateAlert
	for key, occurrences := range groups {
		if len(occurrences) < 2 {
			continue
		}
		sort.Slice(occurrences, func(i, j int) bool {
			if !occurrences[i].OccursOn.Equal(occurrences[j].OccursOn) {
				return occurrences[i].OccursOn.Before(occurrences[j].OccursOn)
			}
			return occurrences[i].SessionID < occurrences[j].SessionID
		})
		alerts = append(alerts, models.DuplicateAlert{
			EntityKey:   key.entity,
			ISOYear:     key.bucket.Year,
			ISOWeek:     key.bucket.Week,
			Occurrences: occurrences,
			Status:      models.AlertActive,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].EntityKey != alerts[j].EntityKey {
			return alerts[i].EntityKey < alerts[j].EntityKey
		}
		if alerts[i].ISOYear != alerts[j].ISOYear {
			return alerts[i].ISOYear < alerts[j].ISOYear
		}
		return alerts[i].ISOWeek < alerts[j].ISOWeek
	})
	return alerts
}

type alertKey struct {
	entity string
	bucket WeekBucket
}

// AlertBook tracks duplicate alerts across audit passes and owns their
// resolution lifecycle. A resolved alert suppresses re-raising for its
// entity/week pair until an occurrence outside the already-reported set
// appears, in which case a fresh active alert is raised.
type AlertBook struct {
	mu     sync.Mutex
	alerts map[string]*models.DuplicateAlert
	byKey  map[alertKey][]string
}

// NewAlertBook creates an empty alert book.
func NewAlertBook() *AlertBook {
	return &AlertBook{
		alerts: make(map[string]*models.DuplicateAlert),
		byKey:  make(map[alertKey][]string),
	}
}

// Seed registers previously persisted alerts. Intended for boot-time
// hydration before the first sweep.
func (b *AlertBook) Seed(alerts []models.DuplicateAlert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range alerts {
		cp := cloneAlert(a)
		b.alerts[cp.ID] = &cp
		key := alertKey{entity: cp.EntityKey, bucket: WeekBucket{Year: cp.ISOYear, Week: cp.ISOWeek}}
		b.byKey[key] = append(b.byKey[key], cp.ID)
	}
}

// Sweep runs the validator over the current periodic set and returns the
// alerts raised or refreshed by this pass, ready to be persisted. Active
// alerts have their occurrence list refreshed in place; resolved alerts stay
// resolved unless a new occurrence appears in the same bucket.
func (b *AlertBook) Sweep(sessions []models.PeriodicSession) []models.DuplicateAlert {
	now := time.Now().UTC()
	groups := FindDuplicates(sessions)

	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []models.DuplicateAlert
	for _, g := range groups {
		key := alertKey{entity: g.EntityKey, bucket: WeekBucket{Year: g.ISOYear, Week: g.ISOWeek}}
		ids := b.byKey[key]

		if len(ids) > 0 {
			latest := b.alerts[ids[len(ids)-1]]
			if latest.Status == models.AlertActive {
				if !sameOccurrences(latest.Occurrences, g.Occurrences) {
					latest.Occurrences = g.Occurrences
					latest.UpdatedAt = now
					changed = append(changed, cloneAlert(*latest))
				}
				continue
			}
			if !b.hasNewOccurrence(key, g.Occurrences) {
				continue
			}
		}

		fresh := g
		fresh.ID = uuid.NewString()
		fresh.CreatedAt = now
		fresh.UpdatedAt = now
		cp := cloneAlert(fresh)
		b.alerts[cp.ID] = &cp
		b.byKey[key] = append(b.byKey[key], cp.ID)
		changed = append(changed, fresh)
	}
	return changed
}

// Resolve applies one of the two supervisory actions to an active alert and
// reports whether the alert transitioned. Resolving an already resolved
// alert is a no-op, so resolution is idempotent.
func (b *AlertBook) Resolve(id string, action models.ResolutionAction, occurrenceID string) (models.DuplicateAlert, bool, error) {
	if !action.Valid() {
		return models.DuplicateAlert{}, false, ErrInvalidResolution
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	alert, ok := b.alerts[id]
	if !ok {
		return models.DuplicateAlert{}, false, ErrAlertNotFound
	}
	if alert.Status == models.AlertResolved {
		return cloneAlert(*alert), false, nil
	}

	if action == models.ResolutionCancelOccurrence {
		if !containsOccurrence(alert.Occurrences, occurrenceID) {
			return models.DuplicateAlert{}, false, ErrInvalidResolution
		}
		alert.ResolvedOccurrenceID = &occurrenceID
	}

	resolved := action
	alert.Status = models.AlertResolved
	alert.ResolutionAction = &resolved
	alert.UpdatedAt = time.Now().UTC()
	return cloneAlert(*alert), true, nil
}

// Get returns a copy of the alert with the given id.
func (b *AlertBook) Get(id string) (models.DuplicateAlert, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	alert, ok := b.alerts[id]
	if !ok {
		return models.DuplicateAlert{}, false
	}
	return cloneAlert(*alert), true
}

// List returns alerts, optionally filtered by status, ordered by entity key
// then bucket then id.
func (b *AlertBook) List(status models.AlertStatus) []models.DuplicateAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.DuplicateAlert
	for _, alert := range b.alerts {
		if status != "" && alert.Status != status {
			continue
		}
		out = append(out, cloneAlert(*alert))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityKey != out[j].EntityKey {
			return out[i].EntityKey < out[j].EntityKey
		}
		if out[i].ISOYear != out[j].ISOYear {
			return out[i].ISOYear < out[j].ISOYear
		}
		if out[i].ISOWeek != out[j].ISOWeek {
			return out[i].ISOWeek < out[j].ISOWeek
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// hasNewOccurrence reports whether any occurrence id is absent from every
// alert already raised for the pair.
func (b *AlertBook) hasNewOccurrence(key alertKey, occurrences []models.AlertOccurrence) bool {
	known := make(map[string]struct{})
	for _, id := range b.byKey[key] {
		for _, occ := range b.alerts[id].Occurrences {
			known[occ.SessionID] = struct{}{}
		}
	}
	for _, occ := range occurrences {
		if _, ok := known[occ.SessionID]; !ok {
			return true
		}
	}
	return false
}

func sameOccurrences(a, b []models.AlertOccurrence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SessionID != b[i].SessionID {
			return false
		}
	}
	return true
}

func containsOccurrence(occurrences []models.AlertOccurrence, id string) bool {
	for _, occ := range occurrences {
		if occ.SessionID == id {
			return true
		}
	}
	return false
}

func cloneAlert(a models.DuplicateAlert) models.DuplicateAlert {
	cp := a
	cp.Occurrences = make([]models.AlertOccurrence, len(a.Occurrences))
	copy(cp.Occurrences, a.Occurrences)
	if a.ResolutionAction != nil {
		action := *a.ResolutionAction
		cp.ResolutionAction = &action
	}
	if a.ResolvedOccurrenceID != nil {
		occ := *a.ResolvedOccurrenceID
		cp.ResolvedOccurrenceID = &occ
	}
	return cp
}
