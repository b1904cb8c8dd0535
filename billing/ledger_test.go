package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/lesson-engine/billing"
	"github.com/classtrack/lesson-engine/schedule"
	"github.com/classtrack/lesson-engine/store/sqlite"
)

// Wednesday 2025-03-05, 10:00 UTC.
var testNow = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*billing.Ledger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return billing.NewLedger(store, schedule.FixedClock{Time: testNow}), store
}

// seedStudent creates a student funded with a 4-lesson, 100.00 plan.
func seedStudent(t *testing.T, ledger *billing.Ledger, store *sqlite.Store) schedule.Student {
	t.Helper()
	ctx := context.Background()

	id := schedule.StudentID(uuid.NewString())
	require.NoError(t, store.SaveStudent(ctx, schedule.Student{
		ID:        id,
		Name:      "Mina",
		QRCode:    string(id),
		CreatedAt: testNow,
	}))
	planID := schedule.PlanID(uuid.NewString())
	require.NoError(t, store.SavePlan(ctx, schedule.SubscriptionPlan{
		ID:      planID,
		Name:    "Starter 4",
		Lessons: 4,
		Price:   decimal.RequireFromString("100.00"),
	}))
	student, err := ledger.ApplySubscription(ctx, id, planID)
	require.NoError(t, err)
	return *student
}

// seedSession inserts a session for the student on the given date.
func seedSession(t *testing.T, store *sqlite.Store, studentID schedule.StudentID, date time.Time, status schedule.SessionStatus) schedule.Session {
	t.Helper()
	sess := schedule.Session{
		ID:        schedule.SessionID(uuid.NewString()),
		Target:    schedule.StudentTarget(studentID),
		Date:      schedule.Midnight(date),
		StartTime: schedule.NewTimeOfDay(10, 0),
		EndTime:   schedule.NewTimeOfDay(11, 0),
		Payment:   decimal.RequireFromString("25.00"),
		Status:    status,
		CreatedAt: testNow,
	}
	require.NoError(t, store.CreateSession(context.Background(), sess))
	return sess
}

func requireBalance(t *testing.T, store *sqlite.Store, id schedule.StudentID, lessons int, balance string) {
	t.Helper()
	student, err := store.GetStudent(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, lessons, student.LessonsRemaining)
	assert.True(t, student.SubscriptionBalance.Equal(decimal.RequireFromString(balance)),
		"balance %s, want %s", student.SubscriptionBalance, balance)
}

// =============================================================================
// MARK ATTENDANCE
// =============================================================================

func TestMarkAttendance_DebitsOneAmortizedLesson(t *testing.T) {
	// GIVEN: 4 lessons and 100.00 on the balance
	// WHEN: marking attendance in an active session
	// THEN: one lesson and 25.00 come off and the log records the scan

	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionInProgress)

	log, err := ledger.MarkAttendance(context.Background(), student.ID, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, schedule.AttendancePresent, log.Status)
	assert.True(t, log.IsValid)
	require.NotNil(t, log.ScannedAt)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestMarkAttendance_Duplicate(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionInProgress)
	ctx := context.Background()

	_, err := ledger.MarkAttendance(ctx, student.ID, sess.ID)
	require.NoError(t, err)

	_, err = ledger.MarkAttendance(ctx, student.ID, sess.ID)
	require.ErrorIs(t, err, schedule.ErrDuplicateAttendance)

	var dup *schedule.DuplicateAttendanceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, student.ID, dup.StudentID)

	// The failed second mark must not have double-billed.
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestMarkAttendance_ExhaustedBalance(t *testing.T) {
	// GIVEN: a student with no funded lessons
	// WHEN: marking attendance
	// THEN: the mark is refused and nothing is written

	ledger, store := newTestLedger(t)
	ctx := context.Background()

	id := schedule.StudentID(uuid.NewString())
	require.NoError(t, store.SaveStudent(ctx, schedule.Student{ID: id, Name: "Unfunded", QRCode: string(id), CreatedAt: testNow}))
	sess := seedSession(t, store, id, testNow, schedule.SessionInProgress)

	_, err := ledger.MarkAttendance(ctx, id, sess.ID)
	require.ErrorIs(t, err, schedule.ErrInsufficientLessons)

	// Lessons without money behind them are equally refused.
	require.NoError(t, store.AdjustStudentBalance(ctx, id, 2, decimal.Zero))
	_, err = ledger.MarkAttendance(ctx, id, sess.ID)
	require.ErrorIs(t, err, schedule.ErrInsufficientBalance)

	logs, err := store.ListRecentAttendance(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMarkAttendance_SessionNotActive(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	ctx := context.Background()

	done := seedSession(t, store, student.ID, testNow.AddDate(0, 0, -1), schedule.SessionCompleted)
	_, err := ledger.MarkAttendance(ctx, student.ID, done.ID)
	assert.ErrorIs(t, err, schedule.ErrSessionNotActive)

	// A future SCHEDULED session is not joinable either.
	future := seedSession(t, store, student.ID, testNow.AddDate(0, 0, 7), schedule.SessionScheduled)
	_, err = ledger.MarkAttendance(ctx, student.ID, future.ID)
	assert.ErrorIs(t, err, schedule.ErrSessionNotActive)

	requireBalance(t, store, student.ID, 4, "100.00")
}

func TestMarkAttendance_ActivatesTodaysScheduledSession(t *testing.T) {
	// GIVEN: today's session still SCHEDULED (sweep hasn't run)
	// WHEN: the first student marks in
	// THEN: the session activates in the same transaction and the mark lands

	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionScheduled)
	ctx := context.Background()

	_, err := ledger.MarkAttendance(ctx, student.ID, sess.ID)
	require.NoError(t, err)

	refreshed, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.SessionInProgress, refreshed.Status)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestMarkAttendance_UnknownSession(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)

	_, err := ledger.MarkAttendance(context.Background(), student.ID, "missing")
	assert.ErrorIs(t, err, schedule.ErrSessionNotFound)
}

// =============================================================================
// STATUS CORRECTIONS
// =============================================================================

func TestSetAttendanceStatus_ReversalRoundTrip(t *testing.T) {
	// GIVEN: a present mark that cost 25.00
	// WHEN: flipping to absent and back to present
	// THEN: the balance lands exactly where it started each way

	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionInProgress)
	ctx := context.Background()

	log, err := ledger.MarkAttendance(ctx, student.ID, sess.ID)
	require.NoError(t, err)
	requireBalance(t, store, student.ID, 3, "75.00")

	reversed, err := ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendanceAbsent)
	require.NoError(t, err)
	assert.Equal(t, schedule.AttendanceAbsent, reversed.Status)
	assert.False(t, reversed.IsValid)
	requireBalance(t, store, student.ID, 4, "100.00")

	restored, err := ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendancePresent)
	require.NoError(t, err)
	assert.Equal(t, schedule.AttendancePresent, restored.Status)
	assert.True(t, restored.IsValid)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestSetAttendanceStatus_ReversalNonTerminatingAmortization(t *testing.T) {
	// GIVEN: a 3-lesson 100.00 plan, so cost_per_lesson does not
	// divide evenly
	// WHEN: marking present and reversing to absent
	// THEN: charge and refund follow balance/lessons at the decimal
	// division precision; the refund is computed from the post-charge
	// state, so the round trip lands one quantum above the start

	ledger, store := newTestLedger(t)
	ctx := context.Background()

	id := schedule.StudentID(uuid.NewString())
	require.NoError(t, store.SaveStudent(ctx, schedule.Student{
		ID:        id,
		Name:      "Noah",
		QRCode:    string(id),
		CreatedAt: testNow,
	}))
	planID := schedule.PlanID(uuid.NewString())
	require.NoError(t, store.SavePlan(ctx, schedule.SubscriptionPlan{
		ID:      planID,
		Name:    "Trio",
		Lessons: 3,
		Price:   decimal.RequireFromString("100.00"),
	}))
	_, err := ledger.ApplySubscription(ctx, id, planID)
	require.NoError(t, err)
	sess := seedSession(t, store, id, testNow, schedule.SessionInProgress)

	// 100.00 / 3 charges 33.3333333333333333
	log, err := ledger.MarkAttendance(ctx, id, sess.ID)
	require.NoError(t, err)
	requireBalance(t, store, id, 2, "66.6666666666666667")

	// 66.6666666666666667 / 2 refunds 33.3333333333333334
	_, err = ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendanceAbsent)
	require.NoError(t, err)
	requireBalance(t, store, id, 3, "100.0000000000000001")
}

func TestSetAttendanceStatus_RefundFloorsAtZero(t *testing.T) {
	// GIVEN: the mark consumed the student's last lesson and last cent
	// WHEN: reversing to absent
	// THEN: the lesson comes back but the monetary refund is zero

	ledger, store := newTestLedger(t)
	ctx := context.Background()

	id := schedule.StudentID(uuid.NewString())
	require.NoError(t, store.SaveStudent(ctx, schedule.Student{ID: id, Name: "Last lesson", QRCode: string(id), CreatedAt: testNow}))
	require.NoError(t, store.AdjustStudentBalance(ctx, id, 1, decimal.RequireFromString("25.00")))
	sess := seedSession(t, store, id, testNow, schedule.SessionInProgress)

	log, err := ledger.MarkAttendance(ctx, id, sess.ID)
	require.NoError(t, err)
	requireBalance(t, store, id, 0, "0.00")

	_, err = ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendanceAbsent)
	require.NoError(t, err)
	requireBalance(t, store, id, 1, "0.00")
}

func TestSetAttendanceStatus_LateLeavesBalanceAlone(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionInProgress)
	ctx := context.Background()

	log, err := ledger.MarkAttendance(ctx, student.ID, sess.ID)
	require.NoError(t, err)

	late, err := ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendanceLate)
	require.NoError(t, err)
	assert.Equal(t, schedule.AttendanceLate, late.Status)
	assert.False(t, late.IsValid)
	require.NotNil(t, late.ScannedAt, "original scan time survives the correction")
	requireBalance(t, store, student.ID, 3, "75.00")

	// Same-status update is a no-op.
	again, err := ledger.SetAttendanceStatus(ctx, log.ID, schedule.AttendanceLate)
	require.NoError(t, err)
	assert.Equal(t, schedule.AttendanceLate, again.Status)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestSetAttendanceStatus_RejectsUnknownStatus(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.SetAttendanceStatus(context.Background(), "any", "vanished")
	assert.Error(t, err)
}

// =============================================================================
// QR SCAN
// =============================================================================

func TestScanQR_MarksTodaysSession(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	sess := seedSession(t, store, student.ID, testNow, schedule.SessionInProgress)

	log, err := ledger.ScanQR(context.Background(), student.ID, student.QRCode)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, log.SessionID)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestScanQR_RejectsWrongPayload(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	ctx := context.Background()

	_, err := ledger.ScanQR(ctx, student.ID, "someone-else")
	assert.ErrorIs(t, err, schedule.ErrInvalidQRCode)

	_, err = ledger.ScanQR(ctx, student.ID, "")
	assert.ErrorIs(t, err, schedule.ErrInvalidQRCode)

	requireBalance(t, store, student.ID, 4, "100.00")
}

func TestScanQR_WalkInCreatesSession(t *testing.T) {
	// GIVEN: nothing on the student's calendar today
	// WHEN: they scan in anyway
	// THEN: a schedule-less session is created and billed against

	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	ctx := context.Background()

	log, err := ledger.ScanQR(ctx, student.ID, student.QRCode)
	require.NoError(t, err)

	sess, err := store.GetSession(ctx, log.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Empty(t, sess.ScheduleID)
	assert.Equal(t, schedule.SessionInProgress, sess.Status)
	assert.True(t, sess.OnDate(testNow))
	requireBalance(t, store, student.ID, 3, "75.00")

	// A second scan resolves to the same walk-in session, so it
	// collapses into the duplicate guard instead of billing twice.
	_, err = ledger.ScanQR(ctx, student.ID, student.QRCode)
	require.ErrorIs(t, err, schedule.ErrDuplicateAttendance)
	requireBalance(t, store, student.ID, 3, "75.00")
}

func TestScanQR_WalkInDuringLastHour(t *testing.T) {
	// GIVEN: a walk-in scan at 23:30, the last hour of the day
	// WHEN: the degenerate session is created
	// THEN: its window closes at 23:59 and the session reads back
	// intact (a 24:00 end time would be unparseable on every read)

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	lateNight := time.Date(2025, time.March, 5, 23, 30, 0, 0, time.UTC)
	ledger := billing.NewLedger(store, schedule.FixedClock{Time: lateNight})
	student := seedStudent(t, ledger, store)
	ctx := context.Background()

	log, err := ledger.ScanQR(ctx, student.ID, student.QRCode)
	require.NoError(t, err)

	sess, err := store.GetSession(ctx, log.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "23:00", sess.StartTime.String())
	assert.Equal(t, "23:59", sess.EndTime.String())

	day, err := store.ListSessionsOnDate(ctx, schedule.Midnight(lateNight))
	require.NoError(t, err)
	assert.Len(t, day, 1)
	requireBalance(t, store, student.ID, 3, "75.00")
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestApplySubscription_CreditsStack(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)
	ctx := context.Background()

	planID := schedule.PlanID(uuid.NewString())
	require.NoError(t, store.SavePlan(ctx, schedule.SubscriptionPlan{
		ID:      planID,
		Name:    "Top-up 8",
		Lessons: 8,
		Price:   decimal.RequireFromString("180.00"),
	}))

	updated, err := ledger.ApplySubscription(ctx, student.ID, planID)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.LessonsRemaining)
	assert.True(t, updated.SubscriptionBalance.Equal(decimal.RequireFromString("280.00")))
	requireBalance(t, store, student.ID, 12, "280.00")

	// Each purchase leaves a history row snapshotting the plan.
	subs, err := store.ListSubscriptionsForStudent(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	var topUp *schedule.StudentSubscription
	for i := range subs {
		if subs[i].PlanID == planID {
			topUp = &subs[i]
		}
	}
	require.NotNil(t, topUp)
	assert.Equal(t, 8, topUp.Lessons)
	assert.True(t, topUp.Price.Equal(decimal.RequireFromString("180.00")))
}

func TestApplySubscription_UnknownPlan(t *testing.T) {
	ledger, store := newTestLedger(t)
	student := seedStudent(t, ledger, store)

	_, err := ledger.ApplySubscription(context.Background(), student.ID, "no-such-plan")
	assert.ErrorIs(t, err, schedule.ErrPlanNotFound)
}
