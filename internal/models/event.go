// Package models defines the core domain entities: events, statuses, and outcomes.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an event. It mirrors the upstream data
// source's state, except StatusCancelled which is only ever set by the
// settlement side after a ledger void.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
	StatusPostponed Status = "postponed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusLive, StatusFinished, StatusPostponed, StatusCancelled:
		return true
	}
	return false
}

// Outcome is the tri-state result of a finished event.
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

// OutcomeFromScores derives the outcome from a final score line.
func OutcomeFromScores(homeScore, awayScore int) Outcome {
	switch {
	case homeScore > awayScore:
		return OutcomeHome
	case awayScore > homeScore:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Event represents a single match tracked by the settlement engine.
// LedgerID stays nil until the event has been registered on the external
// settlement ledger; an event without a ledger id is never polled.
type Event struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	LedgerID    *string    `json:"ledger_id,omitempty"`
	HomeTeam    string     `json:"home_team"`
	AwayTeam    string     `json:"away_team"`
	Competition string     `json:"competition,omitempty"`
	KickoffAt   time.Time  `json:"kickoff_at"`
	Status      Status     `json:"status"`
	PostponedAt *time.Time `json:"postponed_at,omitempty"`
	HomeScore   *int       `json:"home_score,omitempty"`
	AwayScore   *int       `json:"away_score,omitempty"`
	Outcome     *Outcome   `json:"outcome,omitempty"`

	// ResultCommitted means the final outcome is known and persisted locally.
	// LedgerSettled means the outcome (or a cancellation) has reached the
	// ledger. The two are tracked separately: a result can be known while the
	// ledger write is still failing.
	ResultCommitted bool `json:"result_committed"`
	LedgerSettled   bool `json:"ledger_settled"`

	BettingOpen bool      `json:"betting_open"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fixture returns the human-readable pairing, e.g. "Arsenal vs Chelsea".
func (e *Event) Fixture() string {
	return fmt.Sprintf("%s vs %s", e.HomeTeam, e.AwayTeam)
}

// PollEligible reports whether the predictive scheduler should track this
// event: it has a ledger id, is not cancelled, and is not yet settled.
func (e *Event) PollEligible() bool {
	return e.LedgerID != nil && e.Status != StatusCancelled && !e.LedgerSettled
}

// Validate checks event field constraints.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event ID must not be empty")
	}
	if e.ExternalID == "" {
		return errors.New("event external ID must not be empty")
	}
	if e.HomeTeam == "" || e.AwayTeam == "" {
		return errors.New("event teams must not be empty")
	}
	if e.KickoffAt.IsZero() {
		return errors.New("event kickoff time must be set")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("unknown event status %q", e.Status)
	}
	if (e.HomeScore == nil) != (e.AwayScore == nil) {
		return errors.New("scores must be set together")
	}
	if e.Outcome != nil {
		if e.HomeScore == nil {
			return errors.New("outcome requires both scores")
		}
		if got := OutcomeFromScores(*e.HomeScore, *e.AwayScore); got != *e.Outcome {
			return fmt.Errorf("outcome %q does not match scores %d-%d", *e.Outcome, *e.HomeScore, *e.AwayScore)
		}
	}
	if e.ResultCommitted && e.Outcome == nil {
		return errors.New("committed result requires an outcome")
	}
	if e.LedgerSettled && !e.ResultCommitted && e.Status != StatusCancelled {
		return errors.New("ledger-settled event must be resolved or cancelled")
	}
	if e.CreatedAt.After(e.UpdatedAt) {
		return errors.New("created at must be <= updated at")
	}
	return nil
}
