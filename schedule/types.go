/*
Package schedule provides the core class scheduling engine.

PURPOSE:
  This package contains the domain types and algorithms for recurring
  class schedules and their generated session instances: the calendar
  day-matcher, the schedule registry (conflict-free teacher bookings),
  the session generator (idempotent expansion of a schedule into dated
  sessions), and the session lifecycle state machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Target: tagged union naming who a schedule serves (group XOR student)
  - WeekdaySet: the recurring weekday pattern (Monday = 0)
  - TimeOfDay: wall-clock time window boundaries, minute granularity
  - Schedule: a recurring weekly commitment
  - Session: one dated occurrence derived from a Schedule
  - AttendanceLog: a student's presence outcome for a Session
  - Student: billing-relevant fields live here but are mutated ONLY by
    the billing ledger (see billing package)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every rate, payment and balance
  2. Explicit variants: group-vs-private is a tagged union, not a pair
     of nullable foreign keys checked all over the codebase
  3. Snapshots: a Session copies its payment from the Schedule at
     generation time; later rate edits never rewrite history

SEE ALSO:
  - calendar.go: weekday/date matching
  - registry.go: schedule creation and conflict validation
  - generator.go: schedule -> session expansion
  - lifecycle.go: session status transitions
  - store.go: persistence interfaces
*/
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ScheduleID string
type SessionID string
type StudentID string
type TeacherID string
type GroupID string
type AttendanceID string
type PlanID string

// =============================================================================
// TARGET - Who a schedule (and its sessions) serves
// =============================================================================

type TargetKind string

const (
	TargetGroup   TargetKind = "group"
	TargetStudent TargetKind = "student"
)

// Target is the explicit variant replacing "is the group FK null?"
// checks: a schedule serves exactly one of a group or a student.
type Target struct {
	Kind      TargetKind
	GroupID   GroupID
	StudentID StudentID
}

func GroupTarget(id GroupID) Target { return Target{Kind: TargetGroup, GroupID: id} }

func StudentTarget(id StudentID) Target { return Target{Kind: TargetStudent, StudentID: id} }

// Validate rejects targets that name both or neither side.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetGroup:
		if t.GroupID == "" || t.StudentID != "" {
			return ErrInvalidTarget
		}
	case TargetStudent:
		if t.StudentID == "" || t.GroupID != "" {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}

func (t Target) IsGroup() bool { return t.Kind == TargetGroup }

func (t Target) String() string {
	if t.IsGroup() {
		return fmt.Sprintf("group:%s", t.GroupID)
	}
	return fmt.Sprintf("student:%s", t.StudentID)
}

// =============================================================================
// TIME OF DAY - Minute-granularity wall clock boundary
// =============================================================================

// TimeOfDay is minutes since midnight in the school's operating
// timezone. Half-open windows [Start, End) are compared with it.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

// ParseTimeOfDay parses the wire format "HH:MM". Both fields are
// exactly two digits; nothing may follow the minutes.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' ||
		!isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Before(other TimeOfDay) bool { return t < other }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching at a boundary is NOT an overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

// =============================================================================
// SCHEDULE - A recurring weekly commitment
// =============================================================================

type Schedule struct {
	ID        ScheduleID
	TeacherID TeacherID
	Target    Target
	Days      WeekdaySet
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Rate      decimal.Decimal // per-occurrence payment, snapshotted into sessions
	Recurring bool
	CreatedAt time.Time
}

// =============================================================================
// SESSION - One dated occurrence of a schedule
// =============================================================================

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "SCHEDULED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// CanTransitionTo encodes the lifecycle state machine:
//
//	SCHEDULED -> IN_PROGRESS -> COMPLETED
//	SCHEDULED | IN_PROGRESS -> CANCELLED
//
// COMPLETED and CANCELLED are terminal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionScheduled:
		return next == SessionInProgress || next == SessionCancelled
	case SessionInProgress:
		return next == SessionCompleted || next == SessionCancelled
	default:
		return false
	}
}

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session is one dated class meeting. ScheduleID is empty for the
// degenerate date-keyed path (a walk-in scan with no matching
// schedule); every generated session carries its owning schedule.
type Session struct {
	ID         SessionID
	ScheduleID ScheduleID // empty for the degenerate path
	TeacherID  TeacherID
	Target     Target
	Date       time.Time // date only, midnight UTC
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Payment    decimal.Decimal // snapshot of the schedule's rate at generation
	Status     SessionStatus
	CreatedAt  time.Time
}

// OnDate reports whether the session falls on the given calendar day.
func (s Session) OnDate(day time.Time) bool {
	sy, sm, sd := s.Date.Date()
	dy, dm, dd := day.Date()
	return sy == dy && sm == dm && sd == dd
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// AttendanceLog records a student's outcome for one session.
// Unique per (StudentID, SessionID); subsequent writes are status
// transitions on the existing row, never new rows.
//
// IsValid mirrors Status == present. It predates the three-way status
// and is kept in storage for backward compatibility.
type AttendanceLog struct {
	ID        AttendanceID
	StudentID StudentID
	SessionID SessionID
	Status    AttendanceStatus
	IsValid   bool
	ScannedAt *time.Time // nil when the student never scanned in
	CreatedAt time.Time
}

// =============================================================================
// STUDENT - Billing-relevant fields
// =============================================================================

// Student carries the prepaid balance state. LessonsRemaining and
// SubscriptionBalance are mutated exclusively through
// Store.AdjustStudentBalance, which only the billing ledger calls;
// roster CRUD never writes these fields.
type Student struct {
	ID                  StudentID
	Name                string
	Email               string
	Phone               string
	Level               string
	QRCode              string // opaque scan token; equals the student ID string
	LessonsRemaining    int
	SubscriptionBalance decimal.Decimal
	CreatedAt           time.Time
}

// =============================================================================
// ROSTER ENTITIES - No temporal or billing logic of their own
// =============================================================================

type Teacher struct {
	ID              TeacherID
	Name            string
	Email           string
	Phone           string
	Specializations []string
	CreatedAt       time.Time
}

type GroupStatus string

const (
	GroupActive   GroupStatus = "active"
	GroupInactive GroupStatus = "inactive"
	GroupFull     GroupStatus = "full"
	GroupArchived GroupStatus = "archived"
)

type Group struct {
	ID          GroupID
	Name        string
	Description string
	Language    string
	Level       string
	TeacherID   TeacherID
	MaxCapacity int
	Status      GroupStatus
	CreatedAt   time.Time
}

// GroupMember links a student to a group. Read-only from this engine's
// perspective: it answers "which students does a group session cover".
type GroupMember struct {
	GroupID   GroupID
	StudentID StudentID
	JoinedAt  time.Time
}

// SubscriptionPlan is a prepaid lesson package from the catalog.
type SubscriptionPlan struct {
	ID      PlanID
	Name    string
	Lessons int
	Price   decimal.Decimal
}

// StudentSubscription is the purchase record appended when a plan is
// applied to a student. Lessons and Price are snapshots of the plan at
// purchase time; catalog edits never rewrite history.
type StudentSubscription struct {
	ID        string
	StudentID StudentID
	PlanID    PlanID
	Lessons   int
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Performance is an append-only scored feedback row per (student, session).
type Performance struct {
	ID              string
	StudentID       StudentID
	SessionID       SessionID
	Date            time.Time
	VocabularyScore *decimal.Decimal
	GrammarScore    *decimal.Decimal
	SpeakingScore   *decimal.Decimal
	ListeningScore  *decimal.Decimal
	Comments        string
	CreatedAt       time.Time
}
