/*
generator.go - Idempotent schedule -> session expansion

PURPOSE:
  Expands a Schedule's recurring weekday pattern into concrete dated
  Session rows over a target range.

IDEMPOTENCY:
  At most one Session exists per (schedule, date). The generator probes
  for an existing row and returns it unchanged; the storage layer's
  unique index on (schedule_id, date) backs the invariant so a retried
  or concurrent run cannot insert a duplicate. Re-running the same
  range is a no-op, never an error.

ATOMICITY:
  Each Generate call runs inside one transaction: a failure part-way
  rolls back every session created in that call, so a retry sees
  either all or none of the previous attempt.

INITIAL STATUS:
  Sessions dated after today start SCHEDULED; sessions dated today or
  earlier at generation time start IN_PROGRESS (they are already due).

SEE ALSO:
  - calendar.go: date expansion
  - lifecycle.go: status transitions after generation
*/
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	Store TxStore
	Clock Clock
}

func NewGenerator(store TxStore, clock Clock) *Generator {
	return &Generator{Store: store, Clock: clock}
}

// Generate produces the sessions for one schedule across [from, to],
// returning every session in the range (existing and newly created)
// in date order.
func (g *Generator) Generate(ctx context.Context, scheduleID ScheduleID, from, to time.Time) ([]Session, error) {
	var out []Session
	err := g.Store.WithTx(ctx, func(s Store) error {
		sched, err := s.GetSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if sched == nil {
			return ErrScheduleNotFound
		}
		out, _, err = g.generateInTx(ctx, s, *sched, from, to, TodayOf(g.Clock))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateForHorizon expands every recurring schedule over the next N
// weeks starting today. Returns the number of sessions created. This
// is the batch entry point invoked by the periodic trigger.
func (g *Generator) GenerateForHorizon(ctx context.Context, weeks int) (int, error) {
	created := 0
	err := g.Store.WithTx(ctx, func(s Store) error {
		schedules, err := s.ListRecurringSchedules(ctx)
		if err != nil {
			return fmt.Errorf("failed to list recurring schedules: %w", err)
		}

		today := TodayOf(g.Clock)
		end := HorizonEnd(today, weeks)
		for _, sched := range schedules {
			_, n, err := g.generateInTx(ctx, s, sched, today, end, today)
			if err != nil {
				return err
			}
			created += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// generateInTx does the per-schedule expansion against an in-flight
// transaction. today decides the initial status of each new session.
// Returns the sessions in range plus how many were newly created.
func (g *Generator) generateInTx(ctx context.Context, s Store, sched Schedule, from, to, today time.Time) ([]Session, int, error) {
	var out []Session
	created := 0
	for _, date := range sched.Days.DatesInRange(from, to) {
		existing, err := s.GetSessionByScheduleDate(ctx, sched.ID, date)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to probe session for %s: %w", date.Format("2006-01-02"), err)
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}

		sess := Session{
			ID:         SessionID(uuid.NewString()),
			ScheduleID: sched.ID,
			TeacherID:  sched.TeacherID,
			Target:     sched.Target,
			Date:       date,
			StartTime:  sched.StartTime,
			EndTime:    sched.EndTime,
			Payment:    sched.Rate,
			Status:     initialStatus(date, today),
			CreatedAt:  g.Clock.Now(),
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			return nil, 0, fmt.Errorf("failed to create session for %s: %w", date.Format("2006-01-02"), err)
		}
		out = append(out, sess)
		created++
	}
	return out, created, nil
}

// initialStatus applies the date-relative rule: future sessions wait
// as SCHEDULED, sessions already due start IN_PROGRESS.
func initialStatus(date, today time.Time) SessionStatus {
	if date.After(today) {
		return SessionScheduled
	}
	return SessionInProgress
}
