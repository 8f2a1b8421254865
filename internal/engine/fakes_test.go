package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/ledger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/sportsdata"
)

var errNotFound = errors.New("event not found")

// fakeStore is an in-memory Store with the same query semantics as the
// SQLite implementation.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*models.Event

	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]*models.Event)}
}

func (f *fakeStore) add(ev *models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.events[ev.ID] = &cp
}

func (f *fakeStore) get(id string) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.events[id]; ok {
		cp := *ev
		return &cp
	}
	return nil
}

func (f *fakeStore) UpsertEvent(ev *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.ExternalID == ev.ExternalID {
			existing.HomeTeam = ev.HomeTeam
			existing.AwayTeam = ev.AwayTeam
			existing.Competition = ev.Competition
			existing.KickoffAt = ev.KickoffAt
			return nil
		}
	}
	cp := *ev
	f.events[ev.ID] = &cp
	return nil
}

func (f *fakeStore) selectEvents(keep func(*models.Event) bool) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Event
	for _, ev := range f.events {
		if keep(ev) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListEligibleForPolling() ([]*models.Event, error) {
	return f.selectEvents(func(ev *models.Event) bool {
		return ev.LedgerID != nil && ev.Status != models.StatusCancelled &&
			!ev.LedgerSettled && !ev.ResultCommitted
	})
}

func (f *fakeStore) ListSettlementBacklog() ([]*models.Event, error) {
	return f.selectEvents(func(ev *models.Event) bool {
		return ev.LedgerID != nil && ev.ResultCommitted && !ev.LedgerSettled &&
			ev.Status != models.StatusCancelled
	})
}

func (f *fakeStore) ListStaleCandidates() ([]*models.Event, error) {
	return f.selectEvents(func(ev *models.Event) bool {
		return ev.Status == models.StatusPostponed && ev.LedgerID != nil && !ev.LedgerSettled
	})
}

func (f *fakeStore) ListUnresolvedLookback(now time.Time, window time.Duration) ([]*models.Event, error) {
	return f.selectEvents(func(ev *models.Event) bool {
		return ev.LedgerID != nil && !ev.ResultCommitted && !ev.LedgerSettled &&
			ev.Status != models.StatusCancelled &&
			!ev.KickoffAt.Before(now.Add(-window)) && !ev.KickoffAt.After(now)
	})
}

func (f *fakeStore) mutate(id string, fn func(*models.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return errNotFound
	}
	fn(ev)
	return nil
}

func (f *fakeStore) UpdateStatus(id string, status models.Status) error {
	return f.mutate(id, func(ev *models.Event) { ev.Status = status })
}

func (f *fakeStore) MarkPostponed(id string, observedAt time.Time) error {
	return f.mutate(id, func(ev *models.Event) {
		ev.Status = models.StatusPostponed
		if ev.PostponedAt == nil {
			t := observedAt
			ev.PostponedAt = &t
		}
	})
}

func (f *fakeStore) SetResult(id string, homeScore, awayScore int, outcome models.Outcome) error {
	return f.mutate(id, func(ev *models.Event) {
		ev.Status = models.StatusFinished
		ev.HomeScore, ev.AwayScore = &homeScore, &awayScore
		ev.Outcome = &outcome
		ev.ResultCommitted = true
		ev.BettingOpen = false
	})
}

func (f *fakeStore) MarkLedgerSettled(ids []string) error {
	for _, id := range ids {
		if err := f.mutate(id, func(ev *models.Event) { ev.LedgerSettled = true }); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) MarkCancelled(id string) error {
	return f.mutate(id, func(ev *models.Event) {
		ev.Status = models.StatusCancelled
		ev.LedgerSettled = true
		ev.BettingOpen = false
	})
}

func (f *fakeStore) CloseBettingBefore(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.BettingOpen && !ev.KickoffAt.After(now) {
			ev.BettingOpen = false
			n++
		}
	}
	return n, nil
}

// fakeSource serves canned fixtures keyed by external id.
type fakeSource struct {
	mu       sync.Mutex
	fixtures map[string]sportsdata.Fixture
	err      error
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{fixtures: make(map[string]sportsdata.Fixture)}
}

func (f *fakeSource) set(fx sportsdata.Fixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[fx.ExternalID] = fx
}

func (f *fakeSource) FetchByDate(ctx context.Context, date time.Time) ([]sportsdata.Fixture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	day := date.UTC().Format("2006-01-02")
	var out []sportsdata.Fixture
	for _, fx := range f.fixtures {
		if fx.KickoffAt.UTC().Format("2006-01-02") == day {
			out = append(out, fx)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchFixture(ctx context.Context, externalID string) (*sportsdata.Fixture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	fx, ok := f.fixtures[externalID]
	if !ok {
		return nil, errNotFound
	}
	return &fx, nil
}

// fakeLedger records submissions and cancellations, with scriptable
// failures and per-id states.
type fakeLedger struct {
	mu          sync.Mutex
	states      map[string]ledger.State
	submitErr   error
	cancelErr   error
	statusErr   error
	submissions [][]ledger.Settlement
	cancels     map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		states:  make(map[string]ledger.State),
		cancels: make(map[string]string),
	}
}

func (f *fakeLedger) SubmitBatch(ctx context.Context, settlements []ledger.Settlement) (*ledger.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submissions = append(f.submissions, settlements)
	result := &ledger.BatchResult{}
	for _, s := range settlements {
		if f.states[s.LedgerID] == ledger.StateResolved {
			result.Skipped = append(result.Skipped, s.LedgerID)
			continue
		}
		f.states[s.LedgerID] = ledger.StateResolved
		result.Settled = append(result.Settled, s.LedgerID)
	}
	return result, nil
}

func (f *fakeLedger) Cancel(ctx context.Context, ledgerID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.states[ledgerID] = ledger.StateCancelled
	f.cancels[ledgerID] = reason
	return nil
}

func (f *fakeLedger) GetStatus(ctx context.Context, ledgerID string) (ledger.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if st, ok := f.states[ledgerID]; ok {
		return st, nil
	}
	return ledger.StateOpen, nil
}

// fakeNotifier records announcements.
type fakeNotifier struct {
	mu        sync.Mutex
	resolved  [][]*models.Event
	cancelled [][]*models.Event
}

func (f *fakeNotifier) NotifyResolved(events []*models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, events)
}

func (f *fakeNotifier) NotifyCancelled(events []*models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, events)
}
