package schedule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/lesson-engine/schedule"
	memstore "github.com/classtrack/lesson-engine/schedule/store"
)

func newTestGenerator(t *testing.T) (*schedule.Generator, *schedule.Registry, *memstore.TxMemory) {
	t.Helper()
	store := memstore.NewTxMemory()
	clock := schedule.FixedClock{Time: testMonday}
	return schedule.NewGenerator(store, clock), schedule.NewRegistry(store, clock), store
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestGenerate_Rerun_CreatesNothingNew(t *testing.T) {
	// GIVEN: a schedule whose initial horizon is already generated
	// WHEN: generating the same range again
	// THEN: the same sessions come back, none duplicated

	gen, registry, store := newTestGenerator(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0, 2}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	before, err := store.ListSessionsBySchedule(ctx, sched.ID)
	require.NoError(t, err)

	today := schedule.Midnight(testMonday)
	regenerated, err := gen.Generate(ctx, sched.ID, today, schedule.HorizonEnd(today, schedule.InitialHorizonWeeks))
	require.NoError(t, err)
	assert.Len(t, regenerated, len(before))

	after, err := store.ListSessionsBySchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "re-run created no new sessions")

	ids := make(map[schedule.SessionID]bool)
	for _, s := range after {
		assert.False(t, ids[s.ID], "no duplicate session IDs")
		ids[s.ID] = true
	}
}

func TestGenerate_ExtendedRange_OnlyFillsGaps(t *testing.T) {
	// GIVEN: four weeks already generated
	// WHEN: generating six weeks
	// THEN: only the two new weeks' sessions are created

	gen, registry, store := newTestGenerator(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	today := schedule.Midnight(testMonday)
	_, err = gen.Generate(ctx, sched.ID, today, schedule.HorizonEnd(today, 6))
	require.NoError(t, err)

	all, err := store.ListSessionsBySchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Len(t, all, 6, "one Monday per week over six weeks")
}

func TestGenerate_UnknownSchedule(t *testing.T) {
	gen, _, _ := newTestGenerator(t)
	_, err := gen.Generate(context.Background(), "missing", testMonday, testMonday.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

// =============================================================================
// INITIAL STATUS RULE
// =============================================================================

func TestGenerate_PastDatesStartInProgress(t *testing.T) {
	// GIVEN: a range reaching back before today
	// WHEN: generating
	// THEN: past and today's sessions are IN_PROGRESS, future SCHEDULED

	gen, registry, store := newTestGenerator(t)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	today := schedule.Midnight(testMonday)
	lastMonday := today.AddDate(0, 0, -7)
	_, err = gen.Generate(ctx, sched.ID, lastMonday, today.AddDate(0, 0, 7))
	require.NoError(t, err)

	past, err := store.GetSessionByScheduleDate(ctx, sched.ID, lastMonday)
	require.NoError(t, err)
	require.NotNil(t, past)
	assert.Equal(t, schedule.SessionInProgress, past.Status)

	future, err := store.GetSessionByScheduleDate(ctx, sched.ID, today.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.NotNil(t, future)
	assert.Equal(t, schedule.SessionScheduled, future.Status)
}

// =============================================================================
// BATCH HORIZON GENERATION
// =============================================================================

func TestGenerateForHorizon_CoversAllRecurring(t *testing.T) {
	// GIVEN: two recurring schedules and one single-run schedule
	// WHEN: running the batch horizon pass over two weeks
	// THEN: only the recurring ones gain sessions beyond their initial horizon

	gen, registry, store := newTestGenerator(t)
	ctx := context.Background()

	a, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0)))
	require.NoError(t, err)
	b, err := registry.CreateSchedule(ctx, scheduleInput("teacher-2", []int{2}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	oneOff := scheduleInput("teacher-3", []int{4}, at(9, 0), at(10, 0))
	oneOff.Recurring = false
	c, err := registry.CreateSchedule(ctx, oneOff)
	require.NoError(t, err)

	// Initial horizons already exist, so a wider pass only fills the gap.
	created, err := gen.GenerateForHorizon(ctx, schedule.InitialHorizonWeeks+2)
	require.NoError(t, err)
	assert.Equal(t, 4, created, "two extra weeks for each of two recurring schedules")

	cSessions, err := store.ListSessionsBySchedule(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, cSessions, 4, "non-recurring schedule untouched by the batch pass")

	for _, id := range []schedule.ScheduleID{a.ID, b.ID} {
		sessions, err := store.ListSessionsBySchedule(ctx, id)
		require.NoError(t, err)
		assert.Len(t, sessions, 6)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLifecycle_Transitions(t *testing.T) {
	store := memstore.NewTxMemory()
	clock := schedule.FixedClock{Time: testMonday}
	registry := schedule.NewRegistry(store, clock)
	lifecycle := schedule.NewLifecycle(store, clock)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	nextMonday := schedule.Midnight(testMonday).AddDate(0, 0, 7)
	sess, err := store.GetSessionByScheduleDate(ctx, sched.ID, nextMonday)
	require.NoError(t, err)
	require.Equal(t, schedule.SessionScheduled, sess.Status)

	// SCHEDULED -> COMPLETED must go through IN_PROGRESS
	_, err = lifecycle.Transition(ctx, sess.ID, schedule.SessionCompleted)
	require.Error(t, err)
	var invalid *schedule.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, schedule.SessionScheduled, invalid.From)

	updated, err := lifecycle.Transition(ctx, sess.ID, schedule.SessionInProgress)
	require.NoError(t, err)
	assert.Equal(t, schedule.SessionInProgress, updated.Status)

	updated, err = lifecycle.Transition(ctx, sess.ID, schedule.SessionCompleted)
	require.NoError(t, err)
	assert.Equal(t, schedule.SessionCompleted, updated.Status)

	// Terminal states reject everything
	_, err = lifecycle.Transition(ctx, sess.ID, schedule.SessionCancelled)
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestLifecycle_ActivateDue(t *testing.T) {
	// GIVEN: today's session forced back to SCHEDULED plus future ones
	// WHEN: running the activation sweep
	// THEN: only today's session flips to IN_PROGRESS

	store := memstore.NewTxMemory()
	clock := schedule.FixedClock{Time: testMonday}
	registry := schedule.NewRegistry(store, clock)
	lifecycle := schedule.NewLifecycle(store, clock)
	ctx := context.Background()

	sched, err := registry.CreateSchedule(ctx, scheduleInput("teacher-1", []int{0}, at(9, 0), at(10, 0)))
	require.NoError(t, err)

	today := schedule.Midnight(testMonday)
	todaySess, err := store.GetSessionByScheduleDate(ctx, sched.ID, today)
	require.NoError(t, err)
	require.NoError(t, store.UpdateSessionStatus(ctx, todaySess.ID, schedule.SessionScheduled))

	activated, err := lifecycle.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)

	refreshed, err := store.GetSession(ctx, todaySess.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.SessionInProgress, refreshed.Status)

	nextWeek, err := store.GetSessionByScheduleDate(ctx, sched.ID, today.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, schedule.SessionScheduled, nextWeek.Status, "future sessions untouched")

	activated, err = lifecycle.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, activated, "second sweep is a no-op")
}
