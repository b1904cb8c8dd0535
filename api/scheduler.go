/*
scheduler.go - Automated session generation and activation

PURPOSE:
  Periodically rolls the session horizon forward for every recurring
  schedule and flips sessions dated today from SCHEDULED to
  IN_PROGRESS, so the calendar stays populated and attendance scans
  work without manual admin action.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Generation is idempotent: re-running a pass creates nothing new
  - Activation only touches today's SCHEDULED sessions

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - HorizonWeeks:  How far ahead to generate (default: 4 weeks)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSessionScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerGeneration endpoint (manual pass)
  - schedule/generator.go, schedule/lifecycle.go: the work itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/classtrack/lesson-engine/schedule"
)

// SessionScheduler keeps the session horizon rolled forward.
type SessionScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	HorizonWeeks  int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionScheduler creates a new scheduler around the handler's
// engine components.
func NewSessionScheduler(handler *Handler) *SessionScheduler {
	return &SessionScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		HorizonWeeks:  schedule.InitialHorizonWeeks,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SessionScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v, horizon: %d weeks", ss.CheckInterval, ss.HorizonWeeks)
}

// Stop stops the scheduler.
func (ss *SessionScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SessionScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.runPass()

	for {
		select {
		case <-ss.ticker.C:
			ss.runPass()
		case <-ss.stop:
			return
		}
	}
}

// runPass does one generation + activation sweep.
func (ss *SessionScheduler) runPass() {
	ctx := context.Background()

	created, err := ss.Handler.Generator.GenerateForHorizon(ctx, ss.HorizonWeeks)
	if err != nil {
		log.Printf("[Scheduler] Error generating sessions: %v", err)
		return
	}

	activated, err := ss.Handler.Lifecycle.ActivateDue(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error activating sessions: %v", err)
		return
	}

	if created > 0 || activated > 0 {
		log.Printf("[Scheduler] Completed: %d sessions created, %d activated", created, activated)
	}
}
