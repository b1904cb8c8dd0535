/*
Package billing provides the attendance/billing ledger.

PURPOSE:
  The Ledger is the single component allowed to move a student's
  prepaid balance (lessons remaining + subscription balance). Every
  entry point that touches attendance money funnels through it:
  direct attendance marking, the QR scan path, and after-the-fact
  status corrections. No other code path mutates the balance fields.

BILLING RULE:
  cost_per_lesson = subscription_balance / lessons_remaining

  The remaining balance is amortized equally over the remaining
  lessons, NOT charged at the session's fixed payment rate. That way
  the balance lands on exactly zero when the lesson count does,
  independent of any per-session rate drift.

CONSISTENCY:
  Every operation runs in one transaction: precondition checks, the
  attendance row write, and the balance adjustment commit or roll back
  together. The storage-level unique constraint on (student, session)
  is the authoritative race-closer: of two concurrent scans, the
  second insert fails and surfaces as DuplicateAttendanceError with
  zero balance effect.

REVERSALS:
  Corrections re-run the amortization against the CURRENT balance
  state, not the original charge:
    absent -> present  charge balance/lessons, then decrement both
    present -> absent  refund balance/lessons (pre-increment), then
                       increment both; refunds nothing when the
                       lesson count is already zero (zero-floor)
  Transitions involving "late" never touch the balance.

SEE ALSO:
  - schedule/store.go: AdjustStudentBalance, the single mutator
  - schedule/lifecycle.go: session activation rules
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/classtrack/lesson-engine/schedule"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store schedule.TxStore
	Clock schedule.Clock
}

func NewLedger(store schedule.TxStore, clock schedule.Clock) *Ledger {
	return &Ledger{Store: store, Clock: clock}
}

// =============================================================================
// MARK ATTENDANCE - The debit path
// =============================================================================

// MarkAttendance records a student as present in a session and debits
// one lesson plus the amortized cost from their balance, atomically.
//
// Precondition order (each a distinct failure):
//  1. session exists
//  2. session is IN_PROGRESS (a due SCHEDULED session auto-activates
//     first, so the first scan of the day succeeds)
//  3. no attendance exists yet for (student, session)
//  4. lessons_remaining > 0
//  5. subscription_balance > 0
func (l *Ledger) MarkAttendance(ctx context.Context, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	var out *schedule.AttendanceLog
	err := l.Store.WithTx(ctx, func(s schedule.Store) error {
		sess, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return schedule.ErrSessionNotFound
		}
		log, err := l.markInTx(ctx, s, studentID, sess)
		if err != nil {
			return err
		}
		out = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// markInTx is the shared debit path for MarkAttendance and ScanQR,
// running against an in-flight transaction.
func (l *Ledger) markInTx(ctx context.Context, s schedule.Store, studentID schedule.StudentID, sess *schedule.Session) (*schedule.AttendanceLog, error) {
	today := schedule.TodayOf(l.Clock)
	if err := schedule.ActivateIfDue(ctx, s, sess, today); err != nil {
		return nil, err
	}
	if sess.Status != schedule.SessionInProgress {
		return nil, schedule.ErrSessionNotActive
	}

	existing, err := s.GetAttendanceForSession(ctx, studentID, sess.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &schedule.DuplicateAttendanceError{
			StudentID: studentID,
			SessionID: sess.ID,
			Date:      sess.Date,
		}
	}

	student, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, schedule.ErrStudentNotFound
	}
	if student.LessonsRemaining <= 0 {
		return nil, schedule.ErrInsufficientLessons
	}
	if !student.SubscriptionBalance.IsPositive() {
		return nil, schedule.ErrInsufficientBalance
	}

	cost := costPerLesson(student.SubscriptionBalance, student.LessonsRemaining)

	now := l.Clock.Now()
	log := schedule.AttendanceLog{
		ID:        schedule.AttendanceID(uuid.NewString()),
		StudentID: studentID,
		SessionID: sess.ID,
		Status:    schedule.AttendancePresent,
		IsValid:   true,
		ScannedAt: &now,
		CreatedAt: now,
	}
	// The unique constraint on (student, session) is what actually
	// serializes concurrent scans; the lookup above only produces a
	// friendlier error in the common case.
	if err := s.CreateAttendanceLog(ctx, log); err != nil {
		return nil, err
	}
	if err := s.AdjustStudentBalance(ctx, studentID, -1, cost.Neg()); err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	return &log, nil
}

// =============================================================================
// QR SCAN - Same debit, different entry point
// =============================================================================

// ScanQR marks attendance from a QR scan. The payload must literally
// equal the student's stored token (no signing; the surrounding web
// layer owns any hardening). The session is resolved from the
// student's calendar for today; with no session on the calendar the
// legacy date-keyed path creates a degenerate one so walk-ins still
// get billed.
func (l *Ledger) ScanQR(ctx context.Context, studentID schedule.StudentID, payload string) (*schedule.AttendanceLog, error) {
	var out *schedule.AttendanceLog
	err := l.Store.WithTx(ctx, func(s schedule.Store) error {
		student, err := s.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return schedule.ErrStudentNotFound
		}
		if payload == "" || payload != student.QRCode {
			return schedule.ErrInvalidQRCode
		}

		sess, err := l.resolveTodaySession(ctx, s, student)
		if err != nil {
			return err
		}
		log, err := l.markInTx(ctx, s, studentID, sess)
		if err != nil {
			return err
		}
		out = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveTodaySession picks the student's session for today,
// preferring one that is already joinable, or creates the degenerate
// schedule-less session when the calendar has none.
func (l *Ledger) resolveTodaySession(ctx context.Context, s schedule.Store, student *schedule.Student) (*schedule.Session, error) {
	today := schedule.TodayOf(l.Clock)
	sessions, err := s.ListSessionsForStudentOnDate(ctx, student.ID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve today's session: %w", err)
	}
	var candidate *schedule.Session
	for i := range sessions {
		switch sessions[i].Status {
		case schedule.SessionInProgress:
			return &sessions[i], nil
		case schedule.SessionScheduled:
			if candidate == nil {
				candidate = &sessions[i]
			}
		}
	}
	if candidate != nil {
		return candidate, nil
	}

	// Legacy walk-in path: a date-keyed session not tied to any
	// schedule. Zero payment snapshot; billing amortizes the balance
	// regardless of the session rate.
	now := l.Clock.Now()
	end := schedule.NewTimeOfDay(now.Hour()+1, 0)
	if now.Hour() == 23 {
		// TimeOfDay cannot express 24:00; the last walk-in window
		// of the day closes at 23:59.
		end = schedule.NewTimeOfDay(23, 59)
	}
	sess := schedule.Session{
		ID:        schedule.SessionID(uuid.NewString()),
		TeacherID: "",
		Target:    schedule.StudentTarget(student.ID),
		Date:      today,
		StartTime: schedule.NewTimeOfDay(now.Hour(), 0),
		EndTime:   end,
		Payment:   decimal.Zero,
		Status:    schedule.SessionInProgress,
		CreatedAt: now,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create walk-in session: %w", err)
	}
	return &sess, nil
}

// =============================================================================
// STATUS CORRECTIONS - The reversal path
// =============================================================================

// SetAttendanceStatus transitions an existing attendance record to a
// new status, applying the billing reversal rules. Only the
// absent<->present edges carry a balance effect; everything else is a
// plain status update.
func (l *Ledger) SetAttendanceStatus(ctx context.Context, id schedule.AttendanceID, next schedule.AttendanceStatus) (*schedule.AttendanceLog, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("unknown attendance status %q", next)
	}

	var out *schedule.AttendanceLog
	err := l.Store.WithTx(ctx, func(s schedule.Store) error {
		log, err := s.GetAttendanceLog(ctx, id)
		if err != nil {
			return err
		}
		if log == nil {
			return schedule.ErrAttendanceNotFound
		}
		prior := log.Status
		if prior == next {
			out = log
			return nil
		}

		switch {
		case prior == schedule.AttendanceAbsent && next == schedule.AttendancePresent:
			if err := l.chargeInTx(ctx, s, log.StudentID); err != nil {
				return err
			}
		case prior == schedule.AttendancePresent && next == schedule.AttendanceAbsent:
			if err := l.refundInTx(ctx, s, log.StudentID); err != nil {
				return err
			}
		}

		var scannedAt *time.Time
		if next == schedule.AttendancePresent || next == schedule.AttendanceLate {
			now := l.Clock.Now()
			scannedAt = &now
			if log.ScannedAt != nil {
				scannedAt = log.ScannedAt
			}
		}
		valid := next == schedule.AttendancePresent
		if err := s.UpdateAttendanceStatus(ctx, id, next, valid, scannedAt); err != nil {
			return fmt.Errorf("failed to update attendance status: %w", err)
		}
		log.Status = next
		log.IsValid = valid
		log.ScannedAt = scannedAt
		out = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// chargeInTx bills one lesson at the current amortized cost
// (absent -> present).
func (l *Ledger) chargeInTx(ctx context.Context, s schedule.Store, studentID schedule.StudentID) error {
	student, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if student == nil {
		return schedule.ErrStudentNotFound
	}
	if student.LessonsRemaining <= 0 {
		return schedule.ErrInsufficientLessons
	}
	cost := costPerLesson(student.SubscriptionBalance, student.LessonsRemaining)
	return s.AdjustStudentBalance(ctx, studentID, -1, cost.Neg())
}

// refundInTx returns one lesson plus the amortized cost computed from
// the pre-increment lesson count (present -> absent). With zero
// lessons remaining the monetary refund floors at zero; the lesson
// count still comes back.
func (l *Ledger) refundInTx(ctx context.Context, s schedule.Store, studentID schedule.StudentID) error {
	student, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if student == nil {
		return schedule.ErrStudentNotFound
	}
	refund := decimal.Zero
	if student.LessonsRemaining > 0 {
		refund = costPerLesson(student.SubscriptionBalance, student.LessonsRemaining)
	}
	return s.AdjustStudentBalance(ctx, studentID, 1, refund)
}

// =============================================================================
// SUBSCRIPTIONS - The credit path
// =============================================================================

// ApplySubscription credits a plan's lessons and price onto the
// student's balance. Credits stack: buying a second plan before the
// first runs out adds to both fields, and the amortized per-lesson
// cost re-averages accordingly.
func (l *Ledger) ApplySubscription(ctx context.Context, studentID schedule.StudentID, planID schedule.PlanID) (*schedule.Student, error) {
	var out *schedule.Student
	err := l.Store.WithTx(ctx, func(s schedule.Store) error {
		student, err := s.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return schedule.ErrStudentNotFound
		}
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return schedule.ErrPlanNotFound
		}
		if err := s.AdjustStudentBalance(ctx, studentID, plan.Lessons, plan.Price); err != nil {
			return fmt.Errorf("failed to credit subscription: %w", err)
		}
		sub := schedule.StudentSubscription{
			ID:        uuid.NewString(),
			StudentID: studentID,
			PlanID:    plan.ID,
			Lessons:   plan.Lessons,
			Price:     plan.Price,
			CreatedAt: l.Clock.Now(),
		}
		if err := s.RecordSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to record subscription: %w", err)
		}
		student.LessonsRemaining += plan.Lessons
		student.SubscriptionBalance = student.SubscriptionBalance.Add(plan.Price)
		out = student
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// costPerLesson amortizes the remaining balance equally over the
// remaining lessons.
func costPerLesson(balance decimal.Decimal, lessons int) decimal.Decimal {
	return balance.Div(decimal.NewFromInt(int64(lessons)))
}
