package models

import (
	"fmt"
	"time"
)

// Day is a closed enumeration of schedulable weekdays. The institution does
// not teach on Sundays.
type Day string

const (
	DayMonday    Day = "MONDAY"
	DayTuesday   Day = "TUESDAY"
	DayWednesday Day = "WEDNESDAY"
	DayThursday  Day = "THURSDAY"
	DayFriday    Day = "FRIDAY"
	DaySaturday  Day = "SATURDAY"
)

// Days lists all schedulable days in calendar order.
var Days = []Day{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday, DaySaturday}

// Valid reports whether the day is one of the known values.
func (d Day) Valid() bool {
	switch d {
	case DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday, DaySaturday:
		return true
	}
	return false
}

// SessionType categorises a session. Informational only: it never affects
// conflict detection.
type SessionType string

const (
	SessionLecture    SessionType = "LECTURE"
	SessionTutorial   SessionType = "TUTORIAL"
	SessionPractical  SessionType = "PRACTICAL"
	SessionEvaluation SessionType = "EVALUATION"
	SessionMeeting    SessionType = "MEETING"
)

// Valid reports whether the session type is a known value.
func (t SessionType) Valid() bool {
	switch t {
	case SessionLecture, SessionTutorial, SessionPractical, SessionEvaluation, SessionMeeting:
		return true
	}
	return false
}

// Session is a scheduled teaching unit bound to a teacher, a room and a
// class group on a weekly grid. Times are minutes since midnight.
type Session struct {
	ID              string      `db:"id" json:"id"`
	Subject         string      `db:"subject" json:"subject"`
	TeacherID       string      `db:"teacher_id" json:"teacher_id"`
	ClassGroupID    string      `db:"class_group_id" json:"class_group_id"`
	Room            string      `db:"room" json:"room"`
	Day             Day         `db:"day_of_week" json:"day_of_week"`
	StartMinute     int         `db:"start_minute" json:"start_minute"`
	DurationMinutes int         `db:"duration_minutes" json:"duration_minutes"`
	SessionType     SessionType `db:"session_type" json:"session_type"`
	Cycle           string      `db:"cycle" json:"cycle"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// EndMinute returns the exclusive end of the session interval.
func (s Session) EndMinute() int {
	return s.StartMinute + s.DurationMinutes
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	Day          string
	ClassGroupID string
	TeacherID    string
	Room         string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// ParseClockMinute converts an "HH:MM" clock string to minutes since
// midnight.
func ParseClockMinute(clock string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", clock)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", clock)
	}
	return h*60 + m, nil
}

// FormatClockMinute renders minutes since midnight as "HH:MM".
func FormatClockMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
