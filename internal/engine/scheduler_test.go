package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/predictor"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/sportsdata"
)

func newTestScheduler(store Store, source OutcomeSource, lg Ledger, now time.Time) *Scheduler {
	resolver := NewResolver(store, source, 48*time.Hour)
	resolver.now = func() time.Time { return now }
	dispatcher := NewDispatcher(store, lg, nil)
	s := NewScheduler(store, resolver, dispatcher, predictor.Default())
	s.now = func() time.Time { return now }
	return s
}

func TestRecomputePicksEarliestCheck(t *testing.T) {
	store := newFakeStore()
	now := baseKickoff.Add(-time.Hour)

	store.add(trackedEvent("e1", baseKickoff))                  // expected done 16:35
	store.add(trackedEvent("e2", baseKickoff.Add(-30*time.Minute))) // expected done 16:05

	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), now)
	defer s.Stop()
	s.Recompute()

	want := baseKickoff.Add(-30 * time.Minute).Add(95 * time.Minute)
	if got := s.NextWake(); !got.Equal(want) {
		t.Errorf("NextWake = %v, want %v (the earlier event's completion)", got, want)
	}
}

func TestRecomputeIdleWhenNoEligibleEvents(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), baseKickoff)
	defer s.Stop()

	s.Recompute()
	if !s.NextWake().IsZero() {
		t.Error("scheduler should be idle with an empty eligible set")
	}
}

func TestRecomputeIdlePastCutoff(t *testing.T) {
	store := newFakeStore()
	store.add(trackedEvent("e1", baseKickoff))
	now := baseKickoff.Add(5 * time.Hour) // past the 3h hard cutoff

	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), now)
	defer s.Stop()
	s.Recompute()

	if !s.NextWake().IsZero() {
		t.Error("scheduler should go idle once every event is past the cutoff")
	}
}

func TestRecomputeRearmIdempotent(t *testing.T) {
	store := newFakeStore()
	store.add(trackedEvent("e1", baseKickoff))
	now := baseKickoff.Add(-time.Hour)

	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), now)
	defer s.Stop()

	s.Recompute()
	first := s.NextWake()
	firstTimer := s.timer

	s.Recompute()
	if !s.NextWake().Equal(first) {
		t.Errorf("wake time changed across no-op recompute: %v vs %v", s.NextWake(), first)
	}
	if s.timer == firstTimer {
		t.Error("previous timer must be replaced, not reused")
	}
}

func TestRecomputeRearmsAfterStoreError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db locked")
	now := baseKickoff

	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), now)
	defer s.Stop()
	s.Recompute()

	if got := s.NextWake(); !got.Equal(now.Add(storeRetryDelay)) {
		t.Errorf("NextWake = %v, want retry at %v", got, now.Add(storeRetryDelay))
	}
}

func TestStopCancelsTimer(t *testing.T) {
	store := newFakeStore()
	store.add(trackedEvent("e1", baseKickoff))

	s := newTestScheduler(store, newFakeSource(), newFakeLedger(), baseKickoff)
	s.Recompute()
	s.Stop()
	if !s.NextWake().IsZero() {
		t.Error("Stop should clear the armed timer")
	}
}

func TestTriggerPollRunsFullCycle(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	lg := newFakeLedger()
	now := baseKickoff.Add(100 * time.Minute)

	store.add(trackedEvent("e1", baseKickoff))
	source.set(sportsdata.Fixture{
		ExternalID: "fx-e1", KickoffAt: baseKickoff, Status: "FT",
		HomeTeam: "Arsenal", AwayTeam: "Chelsea",
		HomeScore: intPtr(3), AwayScore: intPtr(1),
	})

	s := newTestScheduler(store, source, lg, now)
	defer s.Stop()
	s.Start(context.Background())

	if err := s.TriggerPoll(); err != nil {
		t.Fatalf("TriggerPoll failed: %v", err)
	}

	got := store.get("e1")
	if !got.ResultCommitted || !got.LedgerSettled {
		t.Errorf("forced cycle did not settle the event: %+v", got)
	}
	if len(lg.submissions) != 1 {
		t.Errorf("ledger called %d times, want 1", len(lg.submissions))
	}
	// The event left the eligible set, so the scheduler goes idle.
	if !s.NextWake().IsZero() {
		t.Error("scheduler should be idle after its only event settled")
	}
}

func TestTriggerPollDispatchesBacklogDespiteResolveFailure(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.err = errors.New("upstream down")
	lg := newFakeLedger()
	now := baseKickoff.Add(100 * time.Minute)

	// A previously-resolved event stuck in the backlog, plus a dead source.
	store.add(resolvedEvent("e1", models.OutcomeHome))
	store.add(trackedEvent("e2", baseKickoff))

	s := newTestScheduler(store, source, lg, now)
	defer s.Stop()
	s.Start(context.Background())

	if err := s.TriggerPoll(); err == nil {
		t.Fatal("expected cycle error while upstream is down")
	}
	if got := store.get("e1"); !got.LedgerSettled {
		t.Error("backlog must drain even when resolution fails")
	}
}
