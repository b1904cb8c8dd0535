/*
lifecycle.go - Session status state machine

PURPOSE:
  Governs a Session's status:

    SCHEDULED ──▶ IN_PROGRESS ──▶ COMPLETED
        │              │
        └──────────────┴────────▶ CANCELLED

  COMPLETED and CANCELLED are terminal.

RULES:
  - SCHEDULED -> IN_PROGRESS: explicit, or implicit when the session's
    date is today (time-based activation).
  - IN_PROGRESS -> COMPLETED: explicit only. Nothing auto-completes a
    session nobody actually ran.
  - non-terminal -> CANCELLED: explicit. Cancelling a session with
    attendance rows is allowed and never reverses billing; undoing a
    charge requires an explicit attendance status change through the
    billing ledger.

SEE ALSO:
  - types.go: SessionStatus.CanTransitionTo
  - billing/ledger.go: the only path that reverses charges
*/
package schedule

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// LIFECYCLE
// =============================================================================

type Lifecycle struct {
	Store TxStore
	Clock Clock
}

func NewLifecycle(store TxStore, clock Clock) *Lifecycle {
	return &Lifecycle{Store: store, Clock: clock}
}

// Transition moves a session to a new status, failing with
// InvalidTransitionError on a disallowed edge.
func (l *Lifecycle) Transition(ctx context.Context, id SessionID, next SessionStatus) (*Session, error) {
	var out *Session
	err := l.Store.WithTx(ctx, func(s Store) error {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if !sess.Status.CanTransitionTo(next) {
			return &InvalidTransitionError{SessionID: id, From: sess.Status, To: next}
		}
		if err := s.UpdateSessionStatus(ctx, id, next); err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		sess.Status = next
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateDue flips today's SCHEDULED sessions to IN_PROGRESS. Called
// by the periodic trigger alongside horizon generation, and reachable
// on demand. Returns how many sessions were activated.
func (l *Lifecycle) ActivateDue(ctx context.Context) (int, error) {
	activated := 0
	err := l.Store.WithTx(ctx, func(s Store) error {
		today := TodayOf(l.Clock)
		sessions, err := s.ListSessionsOnDate(ctx, today)
		if err != nil {
			return fmt.Errorf("failed to list today's sessions: %w", err)
		}
		for _, sess := range sessions {
			if sess.Status != SessionScheduled {
				continue
			}
			if err := s.UpdateSessionStatus(ctx, sess.ID, SessionInProgress); err != nil {
				return err
			}
			activated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return activated, nil
}

// ActivateIfDue applies the implicit activation rule to one session
// inside an existing transaction: a SCHEDULED session dated today (or
// earlier) becomes IN_PROGRESS. Used by the attendance path so the
// first scan of the day does not bounce off a not-yet-activated
// session.
func ActivateIfDue(ctx context.Context, s Store, sess *Session, today time.Time) error {
	if sess.Status != SessionScheduled || sess.Date.After(today) {
		return nil
	}
	if err := s.UpdateSessionStatus(ctx, sess.ID, SessionInProgress); err != nil {
		return fmt.Errorf("failed to activate due session: %w", err)
	}
	sess.Status = SessionInProgress
	return nil
}
