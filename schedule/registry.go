/*
registry.go - Schedule creation, conflict validation, deletion policy

PURPOSE:
  Owns Schedule entities. Creation validates target exclusivity, the
  time window, and the weekday set, then checks the teacher's existing
  bookings for overlap on every shared weekday. A successful create
  also pre-generates the first sessions so a new schedule shows up on
  the calendar immediately.

CONFLICT RULE:
  Half-open interval overlap per shared weekday:
    existing.start < new.end AND new.start < existing.end
  Back-to-back bookings (10:30 end, 10:30 start) do NOT conflict.

DELETION POLICY:
  A schedule with future sessions is referenced history; deleting it
  is blocked with ScheduleInUseError unless the caller explicitly
  cascades, which removes the schedule's sessions too.

SEE ALSO:
  - calendar.go: weekday set validation
  - generator.go: initial horizon generation
*/
package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitialHorizonWeeks is how far ahead sessions are generated as a
// side effect of creating a schedule.
const InitialHorizonWeeks = 4

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	Store     TxStore
	Clock     Clock
	Generator *Generator
}

func NewRegistry(store TxStore, clock Clock) *Registry {
	return &Registry{
		Store:     store,
		Clock:     clock,
		Generator: NewGenerator(store, clock),
	}
}

// CreateScheduleInput is the raw input for a new recurring commitment.
type CreateScheduleInput struct {
	TeacherID TeacherID
	Target    Target
	Days      []int
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Rate      decimal.Decimal
	Recurring bool
}

// CreateSchedule validates, conflict-checks, persists, and generates
// the initial session horizon, all in one transaction.
func (r *Registry) CreateSchedule(ctx context.Context, in CreateScheduleInput) (*Schedule, error) {
	if err := in.Target.Validate(); err != nil {
		return nil, err
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	days, err := NewWeekdaySet(in.Days)
	if err != nil {
		return nil, err
	}

	now := r.Clock.Now()
	sched := Schedule{
		ID:        ScheduleID(uuid.NewString()),
		TeacherID: in.TeacherID,
		Target:    in.Target,
		Days:      days,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Rate:      in.Rate,
		Recurring: in.Recurring,
		CreatedAt: now,
	}

	err = r.Store.WithTx(ctx, func(s Store) error {
		if err := r.checkConflicts(ctx, s, sched); err != nil {
			return err
		}
		if err := s.SaveSchedule(ctx, sched); err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}

		today := TodayOf(r.Clock)
		_, _, err := r.Generator.generateInTx(ctx, s, sched, today, HorizonEnd(today, InitialHorizonWeeks), today)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

// checkConflicts scans the teacher's existing schedules for a time
// window overlap on any weekday the new schedule shares with them.
func (r *Registry) checkConflicts(ctx context.Context, s Store, sched Schedule) error {
	existing, err := s.ListSchedulesByTeacher(ctx, sched.TeacherID)
	if err != nil {
		return fmt.Errorf("failed to load teacher schedules: %w", err)
	}

	for _, day := range sched.Days {
		for _, other := range existing {
			if other.ID == sched.ID || !other.Days.Contains(day) {
				continue
			}
			if Overlaps(sched.StartTime, sched.EndTime, other.StartTime, other.EndTime) {
				return &ScheduleConflictError{
					TeacherID:  sched.TeacherID,
					Day:        day,
					ExistingID: other.ID,
					Start:      other.StartTime,
					End:        other.EndTime,
				}
			}
		}
	}
	return nil
}

// GetSchedule looks up a schedule by ID.
func (r *Registry) GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error) {
	sched, err := r.Store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// ListByTeacher returns all schedules for a teacher.
func (r *Registry) ListByTeacher(ctx context.Context, teacherID TeacherID) ([]Schedule, error) {
	return r.Store.ListSchedulesByTeacher(ctx, teacherID)
}

// DeleteSchedule removes a schedule. When the schedule still has
// sessions dated after today it is blocked with ScheduleInUseError
// unless cascade is set, in which case the future sessions go with it.
// Past sessions always survive as billing history: they keep their
// payment snapshot and simply lose the schedule reference.
func (r *Registry) DeleteSchedule(ctx context.Context, id ScheduleID, cascade bool) error {
	return r.Store.WithTx(ctx, func(s Store) error {
		sched, err := s.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if sched == nil {
			return ErrScheduleNotFound
		}

		today := TodayOf(r.Clock)
		future, err := s.CountSessionsAfter(ctx, id, today)
		if err != nil {
			return fmt.Errorf("failed to count future sessions: %w", err)
		}
		if future > 0 && !cascade {
			return &ScheduleInUseError{ScheduleID: id, FutureSessions: future}
		}
		if future > 0 {
			if err := s.DeleteSessionsAfter(ctx, id, today); err != nil {
				return fmt.Errorf("failed to delete future sessions: %w", err)
			}
		}
		return s.DeleteSchedule(ctx, id)
	})
}
