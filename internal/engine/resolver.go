package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/sportsdata"
)

// Resolver runs one poll cycle: it fetches current fixture data for every
// tracked event, classifies each as unfinished, finished-with-result, or
// finished-without-score, and persists the transitions.
type Resolver struct {
	store    Store
	source   OutcomeSource
	lookback time.Duration
	now      func() time.Time
}

// NewResolver creates a resolver. lookback is the window for re-fetching
// older unresolved events that the predictor no longer schedules.
func NewResolver(store Store, source OutcomeSource, lookback time.Duration) *Resolver {
	return &Resolver{
		store:    store,
		source:   source,
		lookback: lookback,
		now:      time.Now,
	}
}

// RunCycle polls the outcome source once for every tracked event and returns
// the events newly resolved in this cycle. Fixtures are fetched in one
// batched call per distinct matchday to bound request volume.
func (r *Resolver) RunCycle(ctx context.Context) ([]*models.Event, error) {
	events, err := r.trackedEvents()
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		logger.Debug("Poll cycle: no tracked events")
		return nil, nil
	}

	fixtures, fetchErr := r.fetchFixtures(ctx, events)
	if len(fixtures) == 0 && fetchErr != nil {
		return nil, fetchErr
	}

	var resolved []*models.Event
	for _, ev := range events {
		fx, ok := fixtures[ev.ExternalID]
		if !ok {
			logger.Debug("No fixture data for %s (%s) this cycle", ev.Fixture(), ev.ExternalID)
			continue
		}
		newlyResolved, err := r.classify(ev, fx)
		if err != nil {
			logger.Error("Failed to apply fixture update for %s: %v", ev.Fixture(), err)
			continue
		}
		if newlyResolved {
			resolved = append(resolved, ev)
		}
	}

	logger.Info("Poll cycle complete: %d tracked, %d newly resolved", len(events), len(resolved))
	return resolved, fetchErr
}

// trackedEvents merges the predictive poll set with the older-unresolved
// lookback, de-duplicated by id.
func (r *Resolver) trackedEvents() ([]*models.Event, error) {
	eligible, err := r.store.ListEligibleForPolling()
	if err != nil {
		return nil, fmt.Errorf("failed to list poll-eligible events: %w", err)
	}
	older, err := r.store.ListUnresolvedLookback(r.now(), r.lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to list lookback events: %w", err)
	}

	seen := make(map[string]bool, len(eligible))
	events := make([]*models.Event, 0, len(eligible)+len(older))
	for _, ev := range eligible {
		seen[ev.ID] = true
		events = append(events, ev)
	}
	for _, ev := range older {
		if !seen[ev.ID] {
			events = append(events, ev)
		}
	}
	return events, nil
}

// fetchFixtures performs one batched fetch per distinct matchday covered by
// the tracked events and indexes the results by external id. A failed date
// is logged and skipped; the last fetch error is returned alongside whatever
// data was obtained.
func (r *Resolver) fetchFixtures(ctx context.Context, events []*models.Event) (map[string]sportsdata.Fixture, error) {
	dates := make(map[string]time.Time)
	for _, ev := range events {
		day := ev.KickoffAt.UTC().Truncate(24 * time.Hour)
		dates[day.Format("2006-01-02")] = day
	}

	fixtures := make(map[string]sportsdata.Fixture)
	var lastErr error
	for key, day := range dates {
		batch, err := r.source.FetchByDate(ctx, day)
		if err != nil {
			logger.Warn("Failed to fetch fixtures for %s: %v", key, err)
			lastErr = err
			continue
		}
		for _, fx := range batch {
			fixtures[fx.ExternalID] = fx
		}
	}
	return fixtures, lastErr
}

// classify applies one fixture observation to one event. It returns true
// when the event transitioned to a committed result in this cycle.
func (r *Resolver) classify(ev *models.Event, fx sportsdata.Fixture) (bool, error) {
	status, known := fx.MappedStatus()
	if !known {
		logger.Warn("Unknown upstream status %q for %s; leaving event untouched", fx.Status, ev.Fixture())
		return false, nil
	}

	switch status {
	case models.StatusLive:
		if ev.Status != models.StatusLive {
			if err := r.store.UpdateStatus(ev.ID, models.StatusLive); err != nil {
				return false, err
			}
			ev.Status = models.StatusLive
			logger.Debug("%s is now live", ev.Fixture())
		}
		return false, nil

	case models.StatusPostponed, models.StatusCancelled:
		// Upstream cancellations route through the stale sweep too: local
		// cancellation only ever follows a ledger void.
		if ev.Status != models.StatusPostponed {
			if err := r.store.MarkPostponed(ev.ID, r.now()); err != nil {
				return false, err
			}
			ev.Status = models.StatusPostponed
			logger.Info("%s postponed (upstream status %s)", ev.Fixture(), fx.Status)
		}
		return false, nil

	case models.StatusFinished:
		if ev.ResultCommitted {
			return false, nil
		}
		if !fx.HasFullScore() {
			// Upstream anomaly: never guess an outcome from partial data.
			logger.Warn("%s reported finished without a full score; retrying next cycle", ev.Fixture())
			return false, nil
		}
		outcome := models.OutcomeFromScores(*fx.HomeScore, *fx.AwayScore)
		if err := r.store.SetResult(ev.ID, *fx.HomeScore, *fx.AwayScore, outcome); err != nil {
			return false, err
		}
		ev.Status = models.StatusFinished
		ev.HomeScore, ev.AwayScore = fx.HomeScore, fx.AwayScore
		ev.Outcome = &outcome
		ev.ResultCommitted = true
		logger.Info("%s finished %d-%d, outcome %s", ev.Fixture(), *fx.HomeScore, *fx.AwayScore, outcome)
		return true, nil

	default:
		// Still scheduled; nothing to record.
		return false, nil
	}
}
