// Package storage provides the SQLite-backed event store.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the tracked events.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/matchday/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "matchday", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id               TEXT PRIMARY KEY,
			external_id      TEXT NOT NULL UNIQUE,
			ledger_id        TEXT,
			home_team        TEXT NOT NULL,
			away_team        TEXT NOT NULL,
			competition      TEXT NOT NULL DEFAULT '',
			kickoff_at       INTEGER NOT NULL,
			status           TEXT NOT NULL DEFAULT 'scheduled',
			postponed_at     INTEGER,
			home_score       INTEGER,
			away_score       INTEGER,
			outcome          TEXT,
			result_committed INTEGER NOT NULL DEFAULT 0,
			ledger_settled   INTEGER NOT NULL DEFAULT 0,
			betting_open     INTEGER NOT NULL DEFAULT 1,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)`,
		`CREATE INDEX IF NOT EXISTS idx_events_settled ON events(ledger_settled, result_committed)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kickoff ON events(kickoff_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEvent inserts a new event or refreshes the fixture details of an
// existing one (matched by external id). Resolution and settlement state is
// never touched by an upsert; ingesting the same fixture twice is safe.
func (s *Storage) UpsertEvent(ev *models.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	var postponedNano *int64
	if ev.PostponedAt != nil {
		ns := ev.PostponedAt.UnixNano()
		postponedNano = &ns
	}
	_, err := s.db.Exec(`
		INSERT INTO events
			(id, external_id, ledger_id, home_team, away_team, competition,
			 kickoff_at, status, postponed_at, betting_open, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(external_id) DO UPDATE SET
			home_team=excluded.home_team,
			away_team=excluded.away_team,
			competition=excluded.competition,
			kickoff_at=excluded.kickoff_at,
			updated_at=excluded.updated_at`,
		ev.ID, ev.ExternalID, ev.LedgerID, ev.HomeTeam, ev.AwayTeam, ev.Competition,
		ev.KickoffAt.UnixNano(), string(ev.Status), postponedNano, boolToInt(ev.BettingOpen),
		ev.CreatedAt.UnixNano(), ev.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// GetEvent returns the event with the given internal id.
func (s *Storage) GetEvent(id string) (*models.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// GetEventByExternalID returns the event with the given upstream id.
func (s *Storage) GetEventByExternalID(externalID string) (*models.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE external_id = ?`, externalID)
	ev, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// SetLedgerID records the ledger id assigned when the event was registered
// with the settlement ledger. From then on the event is a polling target.
func (s *Storage) SetLedgerID(id, ledgerID string) error {
	return s.update(id, `UPDATE events SET ledger_id=?, updated_at=? WHERE id=?`,
		ledgerID, time.Now().UnixNano(), id)
}

// ListEligibleForPolling returns the events the predictive scheduler tracks:
// registered on the ledger, not cancelled, not settled, result still open.
func (s *Storage) ListEligibleForPolling() ([]*models.Event, error) {
	return s.list(`
		SELECT ` + eventCols + ` FROM events
		WHERE ledger_id IS NOT NULL
		  AND status != 'cancelled'
		  AND ledger_settled = 0
		  AND result_committed = 0`)
}

// ListSettlementBacklog returns resolved events whose outcome has not yet
// reached the ledger. This covers both events resolved in the current cycle
// and earlier ones whose submission failed.
func (s *Storage) ListSettlementBacklog() ([]*models.Event, error) {
	return s.list(`
		SELECT ` + eventCols + ` FROM events
		WHERE ledger_id IS NOT NULL
		  AND result_committed = 1
		  AND ledger_settled = 0
		  AND status != 'cancelled'`)
}

// ListStaleCandidates returns postponed, ledger-registered events that may
// need voiding.
func (s *Storage) ListStaleCandidates() ([]*models.Event, error) {
	return s.list(`
		SELECT ` + eventCols + ` FROM events
		WHERE status = 'postponed'
		  AND ledger_id IS NOT NULL
		  AND ledger_settled = 0`)
}

// ListUnresolvedLookback returns ledger-registered events without a result
// that kicked off within the lookback window. These are re-fetched on every
// poll cycle even when the predictor no longer schedules them.
func (s *Storage) ListUnresolvedLookback(now time.Time, window time.Duration) ([]*models.Event, error) {
	return s.list(`
		SELECT `+eventCols+` FROM events
		WHERE ledger_id IS NOT NULL
		  AND result_committed = 0
		  AND ledger_settled = 0
		  AND status NOT IN ('cancelled')
		  AND kickoff_at >= ?
		  AND kickoff_at <= ?`,
		now.Add(-window).UnixNano(), now.UnixNano())
}

// UpdateStatus sets the event status.
func (s *Storage) UpdateStatus(id string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.update(id, `UPDATE events SET status=?, updated_at=? WHERE id=?`,
		string(status), time.Now().UnixNano(), id)
}

// MarkPostponed transitions the event into the postponed state. The
// postponement timestamp is set only on the first transition and preserved
// afterwards.
func (s *Storage) MarkPostponed(id string, observedAt time.Time) error {
	return s.update(id, `
		UPDATE events SET
			status='postponed',
			postponed_at=COALESCE(postponed_at, ?),
			updated_at=?
		WHERE id=?`,
		observedAt.UnixNano(), time.Now().UnixNano(), id)
}

// SetResult persists the final score and outcome in a single statement:
// status, scores, outcome and the committed flag always change together.
func (s *Storage) SetResult(id string, homeScore, awayScore int, outcome models.Outcome) error {
	return s.update(id, `
		UPDATE events SET
			status='finished',
			home_score=?, away_score=?, outcome=?,
			result_committed=1,
			betting_open=0,
			updated_at=?
		WHERE id=?`,
		homeScore, awayScore, string(outcome), time.Now().UnixNano(), id)
}

// MarkLedgerSettled flags every given event as settled on the ledger, in one
// transaction.
func (s *Storage) MarkLedgerSettled(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE events SET ledger_settled=1, updated_at=? WHERE id=?`, now, id); err != nil {
			return fmt.Errorf("failed to mark event %s settled: %w", id, err)
		}
	}
	return tx.Commit()
}

// MarkCancelled moves the event to its terminal cancelled state. A voided
// event counts as settled on the ledger; betting is closed.
func (s *Storage) MarkCancelled(id string) error {
	return s.update(id, `
		UPDATE events SET
			status='cancelled',
			ledger_settled=1,
			betting_open=0,
			updated_at=?
		WHERE id=?`,
		time.Now().UnixNano(), id)
}

// CloseBettingBefore closes betting on every event whose kickoff has passed.
// Returns the number of events affected.
func (s *Storage) CloseBettingBefore(now time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE events SET betting_open=0, updated_at=?
		WHERE betting_open=1 AND kickoff_at <= ?`,
		time.Now().UnixNano(), now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to close betting: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns event counts by status plus the settlement backlog size.
func (s *Storage) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var backlog int
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM events
		WHERE result_committed=1 AND ledger_settled=0 AND ledger_id IS NOT NULL`).Scan(&backlog); err != nil {
		return nil, fmt.Errorf("failed to count backlog: %w", err)
	}
	stats["backlog"] = backlog
	return stats, nil
}

func (s *Storage) update(id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

func (s *Storage) list(query string, args ...any) ([]*models.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	var events []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

const eventCols = `id, external_id, ledger_id, home_team, away_team, competition,
	kickoff_at, status, postponed_at, home_score, away_score, outcome,
	result_committed, ledger_settled, betting_open, created_at, updated_at`

func scanEvent(scan func(...any) error) (*models.Event, error) {
	var ev models.Event
	var status, outcome sql.NullString
	var ledgerID sql.NullString
	var kickoffNano, createdNano, updatedNano int64
	var postponedNano sql.NullInt64
	var homeScore, awayScore sql.NullInt64
	var committed, settled, bettingOpen int

	err := scan(
		&ev.ID, &ev.ExternalID, &ledgerID, &ev.HomeTeam, &ev.AwayTeam, &ev.Competition,
		&kickoffNano, &status, &postponedNano, &homeScore, &awayScore, &outcome,
		&committed, &settled, &bettingOpen, &createdNano, &updatedNano,
	)
	if err != nil {
		return nil, err
	}

	ev.Status = models.Status(status.String)
	if ledgerID.Valid {
		v := ledgerID.String
		ev.LedgerID = &v
	}
	if postponedNano.Valid {
		t := time.Unix(0, postponedNano.Int64)
		ev.PostponedAt = &t
	}
	if homeScore.Valid {
		v := int(homeScore.Int64)
		ev.HomeScore = &v
	}
	if awayScore.Valid {
		v := int(awayScore.Int64)
		ev.AwayScore = &v
	}
	if outcome.Valid {
		o := models.Outcome(outcome.String)
		ev.Outcome = &o
	}
	ev.ResultCommitted = committed != 0
	ev.LedgerSettled = settled != 0
	ev.BettingOpen = bettingOpen != 0
	ev.KickoffAt = time.Unix(0, kickoffNano)
	ev.CreatedAt = time.Unix(0, createdNano)
	ev.UpdatedAt = time.Unix(0, updatedNano)
	return &ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
