// Package predictor decides when a match should next be checked for
// completion. It is pure: all decisions derive from the injected clock and
// the kickoff time, so the schedule is fully deterministic.
package predictor

import "time"

// Predictor maps a kickoff time to an expected completion time and a
// progressive sequence of recheck times past it.
type Predictor struct {
	// TypicalDuration is how long a match normally takes from kickoff to
	// final whistle, including half-time.
	TypicalDuration time.Duration
	// HardCutoff is measured from kickoff; past it the event leaves the
	// predictive schedule and falls to manual resolution.
	HardCutoff time.Duration
	// RecheckOffsets are applied to the expected completion time, in order.
	RecheckOffsets []time.Duration
	// RepeatInterval paces rechecks after the last explicit offset.
	RepeatInterval time.Duration
}

// Default returns the reference policy: 95 minute matches, rechecks at
// completion then +5m/+10m/+20m then every 10m, cut off 3h after kickoff.
func Default() Predictor {
	return Predictor{
		TypicalDuration: 95 * time.Minute,
		HardCutoff:      3 * time.Hour,
		RecheckOffsets: []time.Duration{
			0,
			5 * time.Minute,
			10 * time.Minute,
			20 * time.Minute,
		},
		RepeatInterval: 10 * time.Minute,
	}
}

// ExpectedCompletion returns when a match kicking off at the given time is
// expected to end.
func (p Predictor) ExpectedCompletion(kickoff time.Time) time.Time {
	return kickoff.Add(p.TypicalDuration)
}

// NextCheck returns the earliest time strictly after now at which the event
// should be polled. ok is false once the next check would fall on or past
// the hard cutoff: the event is then out of predictive scope.
func (p Predictor) NextCheck(now, kickoff time.Time) (next time.Time, ok bool) {
	cutoff := kickoff.Add(p.HardCutoff)
	if !now.Before(cutoff) {
		return time.Time{}, false
	}

	expected := p.ExpectedCompletion(kickoff)
	candidate := expected
	for _, off := range p.RecheckOffsets {
		candidate = expected.Add(off)
		if candidate.After(now) {
			if !candidate.Before(cutoff) {
				return time.Time{}, false
			}
			return candidate, true
		}
	}

	// Past the explicit sequence: step forward in fixed intervals from the
	// last offset until we clear now.
	steps := now.Sub(candidate)/p.RepeatInterval + 1
	candidate = candidate.Add(steps * p.RepeatInterval)
	if !candidate.Before(cutoff) {
		return time.Time{}, false
	}
	return candidate, true
}
