// Package engine contains the resolution scheduling and batch settlement
// core: the poll scheduler, the resolution resolver, the batch settlement
// dispatcher, the stale-event sweeper, and the daily fixture sync.
//
// The engine assumes a single scheduling process; there is no cross-process
// coordination.
package engine

import (
	"context"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/ledger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/sportsdata"
)

// Store is the event-store surface the engine needs.
type Store interface {
	UpsertEvent(ev *models.Event) error
	ListEligibleForPolling() ([]*models.Event, error)
	ListSettlementBacklog() ([]*models.Event, error)
	ListStaleCandidates() ([]*models.Event, error)
	ListUnresolvedLookback(now time.Time, window time.Duration) ([]*models.Event, error)
	UpdateStatus(id string, status models.Status) error
	MarkPostponed(id string, observedAt time.Time) error
	SetResult(id string, homeScore, awayScore int, outcome models.Outcome) error
	MarkLedgerSettled(ids []string) error
	MarkCancelled(id string) error
	CloseBettingBefore(now time.Time) (int64, error)
}

// OutcomeSource is the read-only upstream fixtures API.
type OutcomeSource interface {
	FetchByDate(ctx context.Context, date time.Time) ([]sportsdata.Fixture, error)
	FetchFixture(ctx context.Context, externalID string) (*sportsdata.Fixture, error)
}

// Ledger is the external settlement ledger.
type Ledger interface {
	SubmitBatch(ctx context.Context, settlements []ledger.Settlement) (*ledger.BatchResult, error)
	Cancel(ctx context.Context, ledgerID, reason string) error
	GetStatus(ctx context.Context, ledgerID string) (ledger.State, error)
}

// Notifier announces settlement results. Implementations are best-effort:
// they must swallow their own failures, and the engine never checks them.
type Notifier interface {
	NotifyResolved(events []*models.Event)
	NotifyCancelled(events []*models.Event)
}
