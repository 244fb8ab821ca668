package models

import "fmt"

// ConflictKind identifies the shared resource dimension of a collision.
type ConflictKind string

const (
	ConflictTeacher    ConflictKind = "TEACHER"
	ConflictRoom       ConflictKind = "ROOM"
	ConflictClassGroup ConflictKind = "CLASS"
)

// ConflictSeverity grades a conflict. Every resource collision is a hard
// error in this deployment; the field exists so callers can downgrade
// advisory dimensions without changing the wire shape.
type ConflictSeverity string

const (
	SeverityWarning ConflictSeverity = "WARNING"
	SeverityError   ConflictSeverity = "ERROR"
)

// Conflict is a derived, ephemeral record of one collision between a
// candidate session and an existing one. It is recomputed on every
// validation call and never persisted.
type Conflict struct {
	Kind              ConflictKind     `json:"kind"`
	Severity          ConflictSeverity `json:"severity"`
	Resource          string           `json:"resource"`
	ExistingSessionID string           `json:"existing_session_id"`
	ExistingSubject   string           `json:"existing_subject"`
	Day               Day              `json:"day_of_week"`
	ExistingStart     int              `json:"existing_start_minute"`
	ExistingEnd       int              `json:"existing_end_minute"`
	CandidateStart    int              `json:"candidate_start_minute"`
	CandidateEnd      int              `json:"candidate_end_minute"`
}

// TimetableConflictError is returned when a mutation is rejected because the
// candidate collides with committed sessions. It is a normal workflow
// outcome, not a failure: the caller is expected to adjust and retry.
type TimetableConflictError struct {
	Conflicts []Conflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *TimetableConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("timetable conflict: %d collision(s) with committed sessions", len(e.Conflicts))
}
