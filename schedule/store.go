/*
store.go - Persistence interfaces for the scheduling engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Entity persistence for schedules, sessions, attendance and
           the student balance fields.
  TxStore: Store plus WithTx for atomic multi-write units of work.
  Clock:   "Current date/time" injection so tests control today.

UNIQUENESS CONTRACT:
  Implementations MUST enforce two unique constraints at the storage
  layer, not merely check-then-insert in application code:
    - at most one Session per (schedule, date)
    - at most one AttendanceLog per (student, session)
  The second acts as the mutex deciding which of two concurrent
  attendance scans wins; the loser gets ErrDuplicateAttendance.

BALANCE CONTRACT:
  AdjustStudentBalance is the ONLY writer of LessonsRemaining and
  SubscriptionBalance, and it applies relative deltas (balance =
  balance + x) rather than read-then-write. Roster CRUD on students
  never touches these columns.

IMPLEMENTATIONS:
  - store/sqlite:      production store with real constraints
  - schedule/store:    in-memory store for tests

SEE ALSO:
  - registry.go, generator.go, lifecycle.go: engine consumers
  - billing/ledger.go: balance consumer
*/
package schedule

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

type Store interface {
	// Schedules
	SaveSchedule(ctx context.Context, s Schedule) error
	GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error)
	ListSchedulesByTeacher(ctx context.Context, teacherID TeacherID) ([]Schedule, error)
	ListRecurringSchedules(ctx context.Context) ([]Schedule, error)
	// DeleteSchedule removes a schedule row. Surviving sessions keep
	// their snapshot data but lose the schedule reference (they become
	// degenerate, schedule-less sessions). Callers enforce the
	// future-session policy first (see Registry.DeleteSchedule).
	DeleteSchedule(ctx context.Context, id ScheduleID) error

	// Sessions
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// GetSessionByScheduleDate returns nil, nil when no session exists
	// for the pair (the generator's idempotency probe).
	GetSessionByScheduleDate(ctx context.Context, scheduleID ScheduleID, date time.Time) (*Session, error)
	ListSessionsBySchedule(ctx context.Context, scheduleID ScheduleID) ([]Session, error)
	ListSessionsOnDate(ctx context.Context, date time.Time) ([]Session, error)
	// ListSessionsForStudentOnDate covers both private sessions for the
	// student and group sessions for any group the student belongs to.
	ListSessionsForStudentOnDate(ctx context.Context, studentID StudentID, date time.Time) ([]Session, error)
	UpdateSessionStatus(ctx context.Context, id SessionID, status SessionStatus) error
	CountSessionsAfter(ctx context.Context, scheduleID ScheduleID, after time.Time) (int, error)
	DeleteSessionsAfter(ctx context.Context, scheduleID ScheduleID, after time.Time) error

	// Attendance
	CreateAttendanceLog(ctx context.Context, a AttendanceLog) error
	GetAttendanceLog(ctx context.Context, id AttendanceID) (*AttendanceLog, error)
	// GetAttendanceForSession returns nil, nil when the pair has no row.
	GetAttendanceForSession(ctx context.Context, studentID StudentID, sessionID SessionID) (*AttendanceLog, error)
	UpdateAttendanceStatus(ctx context.Context, id AttendanceID, status AttendanceStatus, valid bool, scannedAt *time.Time) error
	ListRecentAttendance(ctx context.Context, limit int) ([]AttendanceLog, error)

	// Students (balance fields only move through AdjustStudentBalance)
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	AdjustStudentBalance(ctx context.Context, id StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error

	// Subscription plans (read side; plan CRUD lives on the concrete store)
	GetPlan(ctx context.Context, id PlanID) (*SubscriptionPlan, error)
	// RecordSubscription appends a purchase row alongside the balance
	// credit (same transaction).
	RecordSubscription(ctx context.Context, sub StudentSubscription) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Every engine operation
// (create schedule, generate sessions, mark attendance, transition)
// runs as one WithTx unit: if fn returns an error, nothing persists.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" so date-relative rules (initial session status,
// auto-activation) are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock pins time for tests.
type FixedClock struct{ Time time.Time }

func (c FixedClock) Now() time.Time { return c.Time }

// TodayOf returns the calendar date of a clock reading.
func TodayOf(c Clock) time.Time { return Midnight(c.Now()) }
