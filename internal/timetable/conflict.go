package timetable

import (
	"strings"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

// DetectConflicts compares a candidate session against the existing set and
// returns every resource collision. One conflict is emitted per shared
// dimension per overlapping pair, in the order the existing sessions are
// scanned, so the result is deterministic for a given input. When the
// candidate carries an id (pre-update check) the stored session with that id
// is excluded so a session never conflicts with itself.
func DetectConflicts(existing []models.Session, candidate models.Session) []models.Conflict {
	cand := intervalOf(candidate)
	var conflicts []models.Conflict
	for _, s := range existing {
		if candidate.ID != "" && s.ID == candidate.ID {
			continue
		}
		if !Overlaps(intervalOf(s), cand) {
			continue
		}
		if s.TeacherID == candidate.TeacherID {
			conflicts = append(conflicts, newConflict(models.ConflictTeacher, s.TeacherID, s, cand))
		}
		if strings.EqualFold(s.Room, candidate.Room) {
			conflicts = append(conflicts, newConflict(models.ConflictRoom, s.Room, s, cand))
		}
		if s.ClassGroupID == candidate.ClassGroupID {
			conflicts = append(conflicts, newConflict(models.ConflictClassGroup, s.ClassGroupID, s, cand))
		}
	}
	return conflicts
}

func newConflict(kind models.ConflictKind, resource string, existing models.Session, cand Interval) models.Conflict {
	return models.Conflict{
		Kind:              kind,
		Severity:          models.SeverityError,
		Resource:          resource,
		ExistingSessionID: existing.ID,
		ExistingSubject:   existing.Subject,
		Day:               existing.Day,
		ExistingStart:     existing.StartMinute,
		ExistingEnd:       existing.EndMinute(),
		CandidateStart:    cand.Start,
		CandidateEnd:      cand.End,
	}
}
