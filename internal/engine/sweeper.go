package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/ledger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

// Sweeper voids abandoned postponements on a fixed-interval sweep,
// independent of the predictive poll schedule. It also closes betting on
// events whose kickoff has passed.
type Sweeper struct {
	store    Store
	ledger   Ledger
	notifier Notifier
	interval time.Duration
	grace    time.Duration
	now      func() time.Time

	// sweepMu keeps the ticker path and the admin trigger path from
	// cancelling the same event concurrently.
	sweepMu sync.Mutex
}

// NewSweeper creates a sweeper. notifier may be nil.
func NewSweeper(store Store, lg Ledger, notifier Notifier, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		ledger:   lg,
		notifier: notifier,
		interval: interval,
		grace:    grace,
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled. It returns immediately;
// the first sweep happens after one full interval.
func (w *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.RunSweep(ctx); err != nil {
					logger.Error("Stale-event sweep failed: %v", err)
				}
			}
		}
	}()
}

// RunSweep performs one sweep: close betting at kickoff, then void every
// cancel-eligible postponed event on the ledger. Shared by the ticker and
// the administrative trigger.
func (w *Sweeper) RunSweep(ctx context.Context) error {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	now := w.now()

	if n, err := w.store.CloseBettingBefore(now); err != nil {
		logger.Error("Failed to close betting at kickoff: %v", err)
	} else if n > 0 {
		logger.Info("Closed betting on %d event(s) past kickoff", n)
	}

	candidates, err := w.store.ListStaleCandidates()
	if err != nil {
		return fmt.Errorf("failed to list stale candidates: %w", err)
	}

	var cancelled []*models.Event
	for _, ev := range candidates {
		if !w.cancelEligible(ev, now) {
			continue
		}
		ok, err := w.cancelOnLedger(ctx, ev)
		if err != nil {
			logger.Error("Failed to void %s: %v", ev.Fixture(), err)
			continue
		}
		if ok {
			cancelled = append(cancelled, ev)
		}
	}

	if len(cancelled) > 0 {
		logger.Info("Stale sweep voided %d event(s)", len(cancelled))
		if w.notifier != nil {
			// Best-effort: the notifier owns its own failures.
			w.notifier.NotifyCancelled(cancelled)
		}
	}
	return nil
}

// cancelEligible decides whether a postponed event may be voided now. A
// postponement that crossed a calendar-day boundary is abandoned outright;
// a same-day one gets the grace period, so a quick reschedule can still
// resolve normally.
func (w *Sweeper) cancelEligible(ev *models.Event, now time.Time) bool {
	ky, km, kd := ev.KickoffAt.UTC().Date()
	ty, tm, td := now.UTC().Date()
	kickoffDay := time.Date(ky, km, kd, 0, 0, 0, 0, time.UTC)
	today := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	if kickoffDay.Before(today) {
		return true
	}
	return ev.PostponedAt != nil && now.Sub(*ev.PostponedAt) >= w.grace
}

// cancelOnLedger re-checks the live ledger state before voiding: a
// ledger-resolved event must never be retroactively cancelled, and a
// ledger-cancelled one only needs local reconciliation. Returns true when
// this sweep actually submitted the cancellation.
func (w *Sweeper) cancelOnLedger(ctx context.Context, ev *models.Event) (bool, error) {
	state, err := w.ledger.GetStatus(ctx, *ev.LedgerID)
	if err != nil {
		return false, fmt.Errorf("ledger status check: %w", err)
	}

	switch state {
	case ledger.StateResolved:
		logger.Warn("%s already resolved on the ledger; skipping cancellation", ev.Fixture())
		return false, nil
	case ledger.StateCancelled:
		logger.Info("%s already cancelled on the ledger; reconciling local state", ev.Fixture())
		if err := w.store.MarkCancelled(ev.ID); err != nil {
			return false, fmt.Errorf("reconcile: %w", err)
		}
		return false, nil
	}

	reason := fmt.Sprintf("postponed fixture abandoned: %s", ev.Fixture())
	if err := w.ledger.Cancel(ctx, *ev.LedgerID, reason); err != nil {
		return false, fmt.Errorf("ledger cancel: %w", err)
	}
	if err := w.store.MarkCancelled(ev.ID); err != nil {
		// The ledger void stands; the next sweep reconciles via the
		// already-cancelled path above.
		return false, fmt.Errorf("ledger void succeeded but local update failed: %w", err)
	}
	ev.Status = models.StatusCancelled
	logger.Info("Voided %s on the ledger (%s)", ev.Fixture(), reason)
	return true, nil
}

// TriggerSweep forces an immediate sweep outside the ticker.
func (w *Sweeper) TriggerSweep(ctx context.Context) error {
	logger.Info("Stale sweep forced by administrative trigger")
	return w.RunSweep(ctx)
}
