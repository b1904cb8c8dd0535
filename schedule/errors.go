/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The billing package and the API layer match on these with errors.Is
  and errors.As.

ERROR CATEGORIES:
  1. Validation errors - bad input shape, rejected before persistence
  2. Conflict errors   - overlap/duplicate, backed by storage uniqueness
  3. State errors      - lifecycle and balance business rules
  4. Not-found errors  - missing entity IDs

USAGE:
  if errors.Is(err, schedule.ErrScheduleConflict) {
      var conflict *schedule.ScheduleConflictError
      errors.As(err, &conflict)
      // conflict.Day, conflict.ExistingID
  }

SEE ALSO:
  - registry.go, generator.go, lifecycle.go: producers
  - billing/ledger.go: producer of the balance-state errors
  - api/handlers.go: maps categories to HTTP statuses
*/
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTarget is returned when a schedule names both a group
	// and a student, or neither.
	ErrInvalidTarget = errors.New("schedule must target exactly one of group or student")

	// ErrInvalidTimeRange is returned when end time is not after start time.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	// ErrInvalidDays is returned for an empty, duplicated, or
	// out-of-range weekday set.
	ErrInvalidDays = errors.New("invalid weekday set")

	// ErrScheduleConflict is returned when a new schedule overlaps an
	// existing booking for the same teacher on a shared weekday.
	ErrScheduleConflict = errors.New("schedule conflicts with an existing booking")

	// ErrScheduleInUse is returned when deleting a schedule that still
	// has future sessions and the caller did not ask to cascade.
	ErrScheduleInUse = errors.New("schedule has future sessions")

	// ErrInvalidTransition is returned for a disallowed session status change.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrSessionNotActive is returned when marking attendance against a
	// session that is not IN_PROGRESS.
	ErrSessionNotActive = errors.New("session is not in progress")

	// ErrDuplicateSession is returned when a session already exists for
	// the (schedule, date) pair. Backed by a storage-level unique
	// constraint. The generator avoids it by probing each date before
	// inserting; the constraint closes the race between concurrent
	// generation passes.
	ErrDuplicateSession = errors.New("session already exists for this schedule and date")

	// ErrDuplicateAttendance is returned when attendance already exists
	// for the (student, session) pair. Backed by a storage-level unique
	// constraint, so concurrent scans cannot both win.
	ErrDuplicateAttendance = errors.New("attendance already marked for this session")

	// ErrInsufficientLessons is returned when a student's prepaid
	// lesson count is exhausted.
	ErrInsufficientLessons = errors.New("no remaining lessons in subscription")

	// ErrInsufficientBalance is returned when a student's subscription
	// balance is exhausted.
	ErrInsufficientBalance = errors.New("insufficient subscription balance")

	// ErrInvalidQRCode is returned when a scan payload does not match
	// the student's stored token.
	ErrInvalidQRCode = errors.New("invalid QR code")

	// Not-found errors.
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrTeacherNotFound    = errors.New("teacher not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrPlanNotFound       = errors.New("subscription plan not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDaysError details which day value was rejected and why.
type InvalidDaysError struct {
	Day    int
	Reason string
}

func (e *InvalidDaysError) Error() string {
	if e.Reason == "at least one day is required" {
		return e.Reason
	}
	return fmt.Sprintf("invalid day %d: %s", e.Day, e.Reason)
}

func (e *InvalidDaysError) Unwrap() error { return ErrInvalidDays }

// ScheduleConflictError identifies the weekday and existing schedule
// that block a new booking.
type ScheduleConflictError struct {
	TeacherID  TeacherID
	Day        Weekday
	ExistingID ScheduleID
	Start      TimeOfDay
	End        TimeOfDay
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("teacher %s already booked on day %d from %s to %s (schedule %s)",
		e.TeacherID, e.Day, e.Start, e.End, e.ExistingID)
}

func (e *ScheduleConflictError) Unwrap() error { return ErrScheduleConflict }

// ScheduleInUseError reports how many future sessions block a delete.
type ScheduleInUseError struct {
	ScheduleID     ScheduleID
	FutureSessions int
}

func (e *ScheduleInUseError) Error() string {
	return fmt.Sprintf("schedule %s has %d future sessions; pass cascade to delete them",
		e.ScheduleID, e.FutureSessions)
}

func (e *ScheduleInUseError) Unwrap() error { return ErrScheduleInUse }

// InvalidTransitionError names the rejected lifecycle edge.
type InvalidTransitionError struct {
	SessionID SessionID
	From      SessionStatus
	To        SessionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s cannot move from %s to %s", e.SessionID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// DuplicateAttendanceError identifies the pair that was already billed.
type DuplicateAttendanceError struct {
	StudentID StudentID
	SessionID SessionID
	Date      time.Time
}

func (e *DuplicateAttendanceError) Error() string {
	return fmt.Sprintf("attendance already marked for student %s in session %s",
		e.StudentID, e.SessionID)
}

func (e *DuplicateAttendanceError) Unwrap() error { return ErrDuplicateAttendance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrTeacherNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrAttendanceNotFound) ||
		errors.Is(err, ErrPlanNotFound)
}

// IsConflict reports whether the error is a uniqueness/overlap conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrScheduleConflict) ||
		errors.Is(err, ErrDuplicateSession) ||
		errors.Is(err, ErrDuplicateAttendance) ||
		errors.Is(err, ErrScheduleInUse)
}

// IsClientError reports whether the caller can correct the failure by
// changing input. Nothing here is transient; the engine never retries.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidDays) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrInsufficientLessons) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidQRCode) ||
		IsConflict(err)
}
