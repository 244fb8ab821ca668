package timetable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

func TestStoreAddCommitsConflictFreeSession(t *testing.T) {
	st := NewStore()

	committed, conflicts, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)
	require.Empty(t, conflicts)
	assert.NotEmpty(t, committed.ID)

	got, ok := st.Get(committed.ID)
	require.True(t, ok)
	assert.Equal(t, committed, got)
	assert.Equal(t, 1, st.Len())
}

func TestStoreAddRejectsWithoutPartialState(t *testing.T) {
	st := NewStore()
	_, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)

	_, conflicts, err := st.Add(session("", "dubois", "102", "6B", models.DayMonday, 510, 60))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Kind)
	assert.Equal(t, 1, st.Len())
}

func TestStoreAddInvalidInterval(t *testing.T) {
	st := NewStore()
	_, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 0))
	require.ErrorIs(t, err, ErrInvalidInterval)
	assert.Equal(t, 0, st.Len())
}

func TestStoreUpdateSelfExclusion(t *testing.T) {
	st := NewStore()
	committed, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)

	// Shift the session onto its own previous slot: must not self-conflict.
	moved := committed
	moved.StartMinute = 510
	updated, conflicts, err := st.Update(committed.ID, moved)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	assert.Equal(t, 510, updated.StartMinute)
	assert.Equal(t, committed.ID, updated.ID)
}

func TestStoreUpdateRejectsConflicting(t *testing.T) {
	st := NewStore()
	first, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)
	second, _, err := st.Add(session("", "martin", "102", "6B", models.DayMonday, 480, 60))
	require.NoError(t, err)

	moved := second
	moved.Room = "101"
	_, conflicts, err := st.Update(second.ID, moved)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictRoom, conflicts[0].Kind)
	assert.Equal(t, first.ID, conflicts[0].ExistingSessionID)

	// Rejected update leaves the stored session untouched.
	got, ok := st.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, "102", got.Room)
}

func TestStoreUpdateUnknownID(t *testing.T) {
	st := NewStore()
	_, _, err := st.Update("missing", session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRemoveIdempotent(t *testing.T) {
	st := NewStore()
	committed, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)

	assert.True(t, st.Remove(committed.ID))
	assert.False(t, st.Remove(committed.ID))
	assert.Equal(t, 0, st.Len())

	// The slot is free again after removal.
	_, conflicts, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestStoreQueriesAreCopies(t *testing.T) {
	st := NewStore()
	committed, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)
	_, _, err = st.Add(session("", "martin", "102", "6A", models.DayTuesday, 480, 60))
	require.NoError(t, err)

	byDay := st.ByDay(models.DayMonday)
	require.Len(t, byDay, 1)
	byClass := st.ByClassGroup("6A")
	require.Len(t, byClass, 2)
	byTeacher := st.ByTeacher("dubois")
	require.Len(t, byTeacher, 1)

	byDay[0].Room = "mutated"
	got, ok := st.Get(committed.ID)
	require.True(t, ok)
	assert.Equal(t, "101", got.Room)
}

func TestStoreLoadReplacesContent(t *testing.T) {
	st := NewStore()
	_, _, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
	require.NoError(t, err)

	st.Load([]models.Session{
		session("x", "martin", "201", "6B", models.DayFriday, 600, 60),
		session("y", "petit", "202", "6C", models.DayFriday, 600, 60),
	})
	assert.Equal(t, 2, st.Len())
	_, ok := st.Get("x")
	assert.True(t, ok)
}

func TestStoreConcurrentAddsSerializeCheckThenCommit(t *testing.T) {
	st := NewStore()

	// Many goroutines race identical candidates; exactly one may commit.
	var wg sync.WaitGroup
	committedCount := make(chan int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, conflicts, err := st.Add(session("", "dubois", "101", "6A", models.DayMonday, 480, 60))
			if err == nil && len(conflicts) == 0 {
				committedCount <- 1
			}
		}()
	}
	wg.Wait()
	close(committedCount)

	total := 0
	for n := range committedCount {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, st.Len())
}

func TestStoreScenarioDubois(t *testing.T) {
	st := NewStore()

	// Session A: Monday 08:00, 1h, teacher Dubois, room 101, class 6A.
	_, conflicts, err := st.Add(session("", "Dubois", "101", "6A", models.DayMonday, 8*60, 60))
	require.NoError(t, err)
	require.Empty(t, conflicts)

	// Candidate B: Monday 08:30, same teacher, other room and class.
	_, conflicts, err = st.Add(session("", "Dubois", "102", "6B", models.DayMonday, 8*60+30, 60))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Kind)

	// Candidate C: Monday 09:00, adjacent to A on every dimension.
	_, conflicts, err = st.Add(session("", "Dubois", "101", "6A", models.DayMonday, 9*60, 60))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
