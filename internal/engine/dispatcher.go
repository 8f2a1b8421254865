package engine

import (
	"context"
	"fmt"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/ledger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

// Dispatcher commits resolved outcomes to the settlement ledger in batches.
// Its input is always the full settlement backlog, so events whose previous
// submission failed are retried automatically with no extra bookkeeping.
type Dispatcher struct {
	store    Store
	ledger   Ledger
	notifier Notifier
}

// NewDispatcher creates a dispatcher. notifier may be nil.
func NewDispatcher(store Store, lg Ledger, notifier Notifier) *Dispatcher {
	return &Dispatcher{store: store, ledger: lg, notifier: notifier}
}

// Dispatch submits the current settlement backlog as one ledger call. On a
// hard submission failure no local flags change; the same backlog is simply
// picked up again on the next cycle. The ledger is idempotent per id, so a
// batch containing already-settled events succeeds with those ids skipped.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	backlog, err := d.store.ListSettlementBacklog()
	if err != nil {
		return fmt.Errorf("failed to load settlement backlog: %w", err)
	}
	if len(backlog) == 0 {
		return nil
	}

	batch := make([]ledger.Settlement, 0, len(backlog))
	ids := make([]string, 0, len(backlog))
	submitted := make([]*models.Event, 0, len(backlog))
	for _, ev := range backlog {
		if ev.LedgerID == nil || ev.Outcome == nil {
			// Should be unreachable given the backlog query; surface rather
			// than drop silently.
			logger.Error("Backlog event %s (%s) missing ledger id or outcome; needs manual intervention", ev.ID, ev.Fixture())
			continue
		}
		batch = append(batch, ledger.Settlement{LedgerID: *ev.LedgerID, Outcome: *ev.Outcome})
		ids = append(ids, ev.ID)
		submitted = append(submitted, ev)
	}
	if len(batch) == 0 {
		return nil
	}

	result, err := d.ledger.SubmitBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("settlement batch of %d failed: %w", len(batch), err)
	}
	if len(result.Skipped) > 0 {
		logger.Info("Ledger skipped %d already-settled event(s) in batch", len(result.Skipped))
	}

	if err := d.store.MarkLedgerSettled(ids); err != nil {
		// The ledger write succeeded; a local flag failure is retried next
		// cycle and the ledger's idempotency absorbs the resubmission.
		return fmt.Errorf("ledger write succeeded but local flags failed: %w", err)
	}

	logger.Info("Settled %d event(s) on the ledger", len(batch))
	if d.notifier != nil {
		d.notifier.NotifyResolved(submitted)
	}
	return nil
}
