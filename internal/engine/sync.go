package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	"github.com/google/uuid"
)

// FixtureSync ingests the day's fixtures into the event store. It runs on a
// cron schedule (and once at startup) so the scheduler always has the
// current matchday, and re-arms an idle scheduler after ingestion.
type FixtureSync struct {
	store     Store
	source    OutcomeSource
	scheduler *Scheduler
	now       func() time.Time
}

// NewFixtureSync creates a fixture sync.
func NewFixtureSync(store Store, source OutcomeSource, scheduler *Scheduler) *FixtureSync {
	return &FixtureSync{
		store:     store,
		source:    source,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Run fetches today's fixtures and upserts them. Existing events only get
// their fixture details refreshed; resolution state is untouched. New events
// enter without a ledger id and become poll targets once the first wager
// registers them on the ledger.
func (f *FixtureSync) Run(ctx context.Context) error {
	today := f.now()
	fixtures, err := f.source.FetchByDate(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to fetch today's fixtures: %w", err)
	}

	ingested := 0
	for _, fx := range fixtures {
		status, known := fx.MappedStatus()
		if !known {
			status = models.StatusScheduled
		}
		if status == models.StatusCancelled {
			// Never ingest upstream cancellations as local terminal state;
			// only a ledger void cancels an event here.
			status = models.StatusPostponed
		}
		now := f.now()
		ev := &models.Event{
			ID:          uuid.NewString(),
			ExternalID:  fx.ExternalID,
			HomeTeam:    fx.HomeTeam,
			AwayTeam:    fx.AwayTeam,
			Competition: fx.Competition,
			KickoffAt:   fx.KickoffAt,
			Status:      status,
			BettingOpen: now.Before(fx.KickoffAt),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if status == models.StatusPostponed {
			// The grace clock for stale-event cancellation starts at first
			// observation, which for a pre-postponed fixture is ingestion.
			ev.PostponedAt = &now
		}
		if err := f.store.UpsertEvent(ev); err != nil {
			logger.Warn("Failed to ingest fixture %s (%s): %v", fx.ExternalID, ev.Fixture(), err)
			continue
		}
		ingested++
	}

	logger.Info("Fixture sync: %d of %d fixtures ingested for %s",
		ingested, len(fixtures), today.UTC().Format("2006-01-02"))

	// Ingestion may have refreshed kickoff times; rearm the schedule.
	if f.scheduler != nil {
		f.scheduler.Recompute()
	}
	return nil
}
