package timetable

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

// ErrNotFound is returned by Update for an id absent from the store.
var ErrNotFound = errors.New("session not found")

// Store owns the authoritative session set for its process lifetime. Add and
// Update run detection and commit inside a single critical section, so two
// racing candidates can never both pass against a stale snapshot. Reads
// return copies; callers cannot mutate committed state.
type Store struct {
	mu       sync.RWMutex
	sessions []models.Session
	index    map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Load replaces the store content with the given sessions, preserving their
// order. Intended for boot-time hydration from the persistence adapter.
func (st *Store) Load(sessions []models.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions = make([]models.Session, len(sessions))
	copy(st.sessions, sessions)
	st.index = make(map[string]int, len(sessions))
	for i, s := range st.sessions {
		st.index[s.ID] = i
	}
}

// Add validates the candidate and commits it when no conflict exists. A
// non-empty conflict list means the mutation was rejected and the store is
// unchanged. An id is assigned when the candidate has none.
func (st *Store) Add(candidate models.Session) (models.Session, []models.Conflict, error) {
	if _, err := NewInterval(candidate.Day, candidate.StartMinute, candidate.DurationMinutes); err != nil {
		return models.Session{}, nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if conflicts := DetectConflicts(st.sessions, candidate); len(conflicts) > 0 {
		return models.Session{}, conflicts, nil
	}

	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	st.index[candidate.ID] = len(st.sessions)
	st.sessions = append(st.sessions, candidate)
	return candidate, nil, nil
}

// Update replaces the session with the given id after re-running detection
// against the rest of the set. The session being updated is excluded from
// the comparison so it never conflicts with its own previous slot. The
// committed session keeps its position, so conflict scan order stays stable
// across updates.
func (st *Store) Update(id string, candidate models.Session) (models.Session, []models.Conflict, error) {
	if _, err := NewInterval(candidate.Day, candidate.StartMinute, candidate.DurationMinutes); err != nil {
		return models.Session{}, nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	pos, ok := st.index[id]
	if !ok {
		return models.Session{}, nil, ErrNotFound
	}

	candidate.ID = id
	if conflicts := DetectConflicts(st.sessions, candidate); len(conflicts) > 0 {
		return models.Session{}, conflicts, nil
	}

	st.sessions[pos] = candidate
	return candidate, nil, nil
}

// Remove deletes the session with the given id. Removal can only resolve
// conflicts, never create them, so there is no validation; an unknown id is
// a no-op and removal is idempotent.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	pos, ok := st.index[id]
	if !ok {
		return false
	}

	copy(st.sessions[pos:], st.sessions[pos+1:])
	st.sessions = st.sessions[:len(st.sessions)-1]
	delete(st.index, id)
	for i := pos; i < len(st.sessions); i++ {
		st.index[st.sessions[i].ID] = i
	}
	return true
}

// Get returns a copy of the session with the given id.
func (st *Store) Get(id string) (models.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	pos, ok := st.index[id]
	if !ok {
		return models.Session{}, false
	}
	return st.sessions[pos], true
}

// Snapshot returns a copy of the full committed set in insertion order.
func (st *Store) Snapshot() []models.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]models.Session, len(st.sessions))
	copy(out, st.sessions)
	return out
}

// ByDay returns the sessions scheduled on the given day.
func (st *Store) ByDay(day models.Day) []models.Session {
	return st.filter(func(s models.Session) bool { return s.Day == day })
}

// ByClassGroup returns the sessions taught to the given class group.
func (st *Store) ByClassGroup(classGroupID string) []models.Session {
	return st.filter(func(s models.Session) bool { return s.ClassGroupID == classGroupID })
}

// ByTeacher returns the sessions taught by the given teacher.
func (st *Store) ByTeacher(teacherID string) []models.Session {
	return st.filter(func(s models.Session) bool { return s.TeacherID == teacherID })
}

// Len returns the number of committed sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) filter(keep func(models.Session) bool) []models.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []models.Session
	for _, s := range st.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
