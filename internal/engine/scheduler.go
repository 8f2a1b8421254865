package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/predictor"
)

// storeRetryDelay is the fallback rearm delay when the eligible set cannot
// be read; without it a transient store error would leave the scheduler
// dark forever.
const storeRetryDelay = time.Minute

// Scheduler owns the single poll timer. It computes the next wake time as
// the minimum predicted next check across all poll-eligible events, fires
// one poll cycle at that time, and recomputes. With no eligible events in
// predictive scope it sits idle until Recompute is called again (daily
// ingestion, admin trigger, or a new ledger registration).
type Scheduler struct {
	store      Store
	resolver   *Resolver
	dispatcher *Dispatcher
	pred       predictor.Predictor
	now        func() time.Time

	// CycleResult, when set before Start, observes the outcome of every
	// timer-driven poll cycle (nil on success). Used for failure/recovery
	// notifications; it must not block for long.
	CycleResult func(err error)

	ctx context.Context

	mu       sync.Mutex // guards timer and nextWake
	timer    *time.Timer
	nextWake time.Time

	// cycleMu serializes poll cycles and settlement submissions: the timer
	// path and the admin trigger path must never run concurrently, or the
	// same ledger id could be submitted twice before flags update.
	cycleMu sync.Mutex
}

// NewScheduler creates a scheduler.
func NewScheduler(store Store, resolver *Resolver, dispatcher *Dispatcher, pred predictor.Predictor) *Scheduler {
	return &Scheduler{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		pred:       pred,
		now:        time.Now,
		ctx:        context.Background(),
	}
}

// Start arms the first timer. ctx bounds all network calls made from timer
// wakes.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.Recompute()
}

// Stop cancels any outstanding timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// Recompute replaces the outstanding timer with one armed for the earliest
// predicted next check. Calling it repeatedly with unchanged state is
// harmless: the previous timer is always cancelled before a new one is set.
func (s *Scheduler) Recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()

	events, err := s.store.ListEligibleForPolling()
	if err != nil {
		logger.Error("Failed to list poll-eligible events; retrying in %v: %v", storeRetryDelay, err)
		s.armLocked(s.now().Add(storeRetryDelay))
		return
	}

	now := s.now()
	var next time.Time
	for _, ev := range events {
		t, ok := s.pred.NextCheck(now, ev.KickoffAt)
		if !ok {
			continue // past the hard cutoff; manual resolution territory
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}

	if next.IsZero() {
		logger.Debug("Poll scheduler idle: no events in predictive scope (%d eligible)", len(events))
		return
	}
	s.armLocked(next)
}

// NextWake returns the currently armed wake time; zero when idle.
func (s *Scheduler) NextWake() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextWake
}

func (s *Scheduler) armLocked(at time.Time) {
	d := at.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.nextWake = at
	s.timer = time.AfterFunc(d, s.onWake)
	logger.Debug("Next poll armed for %s (in %v)", at.Format(time.RFC3339), d.Round(time.Second))
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextWake = time.Time{}
}

func (s *Scheduler) onWake() {
	err := s.RunPollCycle()
	if err != nil {
		logger.Error("Scheduled poll cycle failed: %v", err)
	}
	if s.CycleResult != nil {
		s.CycleResult(err)
	}
	// State may have changed during the cycle; always reschedule from the
	// fresh eligible set.
	s.Recompute()
}

// RunPollCycle performs one resolve-then-settle cycle. It is the single code
// path for both timer wakes and administrative triggers, and only one cycle
// runs at a time. The settlement dispatch always runs, even when resolution
// failed: the backlog may hold events from earlier cycles.
func (s *Scheduler) RunPollCycle() error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := s.now()
	logger.Info("Starting poll cycle")

	_, resolveErr := s.resolver.RunCycle(s.ctx)
	dispatchErr := s.dispatcher.Dispatch(s.ctx)

	logger.Info("Poll cycle finished in %v", time.Since(started).Round(time.Millisecond))
	return errors.Join(resolveErr, dispatchErr)
}

// TriggerPoll forces an immediate poll cycle outside the normal timer and
// rearms the schedule. Used for operational recovery.
func (s *Scheduler) TriggerPoll() error {
	logger.Info("Poll cycle forced by administrative trigger")
	err := s.RunPollCycle()
	s.Recompute()
	return err
}
