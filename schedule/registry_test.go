package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/lesson-engine/schedule"
	memstore "github.com/classtrack/lesson-engine/schedule/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testMonday is a fixed "today" so date-relative rules are
// deterministic. 2025-03-03 is a Monday.
var testMonday = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*schedule.Registry, *memstore.TxMemory) {
	t.Helper()
	store := memstore.NewTxMemory()
	registry := schedule.NewRegistry(store, schedule.FixedClock{Time: testMonday})
	return registry, store
}

func scheduleInput(teacher string, days []int, start, end schedule.TimeOfDay) schedule.CreateScheduleInput {
	return schedule.CreateScheduleInput{
		TeacherID: schedule.TeacherID(teacher),
		Target:    schedule.GroupTarget("group-a"),
		Days:      days,
		StartTime: start,
		EndTime:   end,
		Rate:      decimal.RequireFromString("30.00"),
		Recurring: true,
	}
}

func at(h, m int) schedule.TimeOfDay { return schedule.NewTimeOfDay(h, m) }

// =============================================================================
// CREATION AND VALIDATION
// =============================================================================

func TestCreateSchedule_GeneratesInitialSessions(t *testing.T) {
	// GIVEN: a Mon/Wed schedule created on a Monday
	// WHEN: creation succeeds
	// THEN: the initial four-week horizon is populated and today's
	//       session starts IN_PROGRESS while the rest wait as SCHEDULED

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0, 2}, at(9, 0), at(10, 30)))
	require.NoError(t, err)
	require.NotEmpty(t, sched.ID)

	sessions, err := store.ListSessionsBySchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 8, "two days over four weeks")

	assert.Equal(t, schedule.SessionInProgress, sessions[0].Status, "today's session is already due")
	for _, s := range sessions[1:] {
		assert.Equal(t, schedule.SessionScheduled, s.Status)
		assert.True(t, s.Payment.Equal(sched.Rate), "payment snapshots the rate")
	}
}

func TestCreateSchedule_RejectsInvalidInput(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	// Inverted time window
	_, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(11, 0), at(10, 0)))
	assert.ErrorIs(t, err, schedule.ErrInvalidTimeRange)

	// Empty weekday set
	_, err = registry.CreateSchedule(ctx, scheduleInput("teacher-1", nil, at(9, 0), at(10, 0)))
	assert.ErrorIs(t, err, schedule.ErrInvalidDays)

	// Target naming both sides
	in := scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0))
	in.Target = schedule.Target{Kind: schedule.TargetGroup, GroupID: "g", StudentID: "s"}
	_, err = registry.CreateSchedule(ctx, in)
	assert.ErrorIs(t, err, schedule.ErrInvalidTarget)
}

// =============================================================================
// CONFLICT DETECTION
// =============================================================================

func TestCreateSchedule_OverlapSameTeacherSameDay_Rejected(t *testing.T) {
	// GIVEN: teacher booked Monday 09:00-10:30
	// WHEN: booking Monday 10:00-11:00
	// THEN: rejected with ScheduleConflictError naming the existing booking

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	existing, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 30)))
	require.NoError(t, err)

	_, err = registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(10, 0), at(11, 0)))
	require.Error(t, err)

	var conflict *schedule.ScheduleConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, existing.ID, conflict.ExistingID)
	assert.Equal(t, schedule.Monday, conflict.Day)
	assert.ErrorIs(t, err, schedule.ErrScheduleConflict)
}

func TestCreateSchedule_BackToBack_Allowed(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 30)))
	require.NoError(t, err)

	// Starts exactly when the first ends
	_, err = registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(10, 30), at(11, 30)))
	assert.NoError(t, err)
}

func TestCreateSchedule_OverlapDifferentDayOrTeacher_Allowed(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 30)))
	require.NoError(t, err)

	// Same window, different day
	_, err = registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{1}, at(9, 0), at(10, 30)))
	assert.NoError(t, err)

	// Same window, same day, different teacher
	_, err = registry.CreateSchedule(ctx, scheduleInput("teacher-2", []int{0}, at(9, 0), at(10, 30)))
	assert.NoError(t, err)
}

func TestCreateSchedule_ConflictRollsBackEverything(t *testing.T) {
	// GIVEN: a conflicting schedule
	// WHEN: creation fails
	// THEN: neither the schedule nor any sessions persist

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 30)))
	require.NoError(t, err)

	rejected, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0, 2}, at(10, 0), at(11, 0)))
	require.Error(t, err)
	require.Nil(t, rejected)

	schedules, err := store.ListSchedulesByTeacher(ctx, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, schedules, 1, "only the first schedule exists")
}

// =============================================================================
// DELETION POLICY
// =============================================================================

func TestDeleteSchedule_FutureSessionsBlockWithoutCascade(t *testing.T) {
	// GIVEN: a schedule with future sessions
	// WHEN: deleting without cascade
	// THEN: blocked with ScheduleInUseError carrying the count

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0, 2}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	err = registry.DeleteSchedule(ctx, sched.ID, false)
	require.Error(t, err)

	var inUse *schedule.ScheduleInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 7, inUse.FutureSessions, "today's session is not counted as future")

	// Schedule survives the rejected delete
	_, err = registry.GetSchedule(ctx, sched.ID)
	assert.NoError(t, err)
}

func TestDeleteSchedule_CascadeRemovesFutureKeepsHistory(t *testing.T) {
	// GIVEN: a schedule with one due session (today) and future ones
	// WHEN: deleting with cascade
	// THEN: future sessions are gone, today's session survives as a
	//       degenerate schedule-less row

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0, 2}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	today := schedule.Midnight(testMonday)
	survivor, err := store.GetSessionByScheduleDate(ctx, sched.ID, today)
	require.NoError(t, err)
	require.NotNil(t, survivor)

	require.NoError(t, registry.DeleteSchedule(ctx, sched.ID, true))

	_, err = registry.GetSchedule(ctx, sched.ID)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)

	kept, err := store.GetSession(ctx, survivor.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Empty(t, kept.ScheduleID, "history session loses the schedule reference")

	remaining, err := store.ListSessionsOnDate(ctx, today.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, remaining, "future sessions removed")
}

func TestDeleteSchedule_NotFound(t *testing.T) {
	registry, _ := newTestRegistry(t)
	err := registry.DeleteSchedule(context.Background(), "missing", false)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}
