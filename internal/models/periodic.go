package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// PeriodicSession is a dated occurrence of a recurring pedagogical session
// tracked by the weekly uniqueness rule (at most one per entity per ISO
// week). It is independent of the weekly timetable grid.
type PeriodicSession struct {
	ID        string    `db:"id" json:"id"`
	EntityKey string    `db:"entity_key" json:"entity_key"`
	Label     string    `db:"label" json:"label"`
	OccursOn  time.Time `db:"occurs_on" json:"occurs_on"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AlertStatus tracks the lifecycle of a duplicate alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
)

// ResolutionAction is the binary supervisory choice offered for an alert.
type ResolutionAction string

const (
	ResolutionCancelOccurrence ResolutionAction = "CANCEL_OCCURRENCE"
	ResolutionAllowException   ResolutionAction = "ALLOW_EXCEPTION"
)

// Valid reports whether the action is one of the two supported choices.
func (a ResolutionAction) Valid() bool {
	return a == ResolutionCancelOccurrence || a == ResolutionAllowException
}

// AlertOccurrence identifies one colliding periodic session inside an alert.
type AlertOccurrence struct {
	SessionID string    `json:"session_id"`
	OccursOn  time.Time `json:"occurs_on"`
}

// DuplicateAlert records a violation of the weekly uniqueness rule for an
// entity/week pair. Alerts reference sessions by id only.
type DuplicateAlert struct {
	ID                   string            `db:"id" json:"id"`
	EntityKey            string            `db:"entity_key" json:"entity_key"`
	ISOYear              int               `db:"iso_year" json:"iso_year"`
	ISOWeek              int               `db:"iso_week" json:"iso_week"`
	Occurrences          []AlertOccurrence `db:"-" json:"occurrences"`
	OccurrencesRaw       types.JSONText    `db:"occurrences" json:"-"`
	Status               AlertStatus       `db:"status" json:"status"`
	ResolutionAction     *ResolutionAction `db:"resolution_action" json:"resolution_action,omitempty"`
	ResolvedOccurrenceID *string           `db:"resolved_occurrence_id" json:"resolved_occurrence_id,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}
