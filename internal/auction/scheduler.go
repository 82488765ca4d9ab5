// Package auction implements the commit-reveal batch auction engine: the
// phase scheduler, the commitment ledger, the reveal validator, and the
// orchestrator that composes them around one authoritative batch state.
package auction

import (
	"time"

	"github.com/blendtrade/auctiond/internal/domain"
)

// Clock supplies the current time. Injectable so phase timing is
// deterministic under test.
type Clock func() time.Time

// Scheduler advances the repeating Commit → Reveal → Settling cycle on a
// fixed wall-clock cadence. It owns phase timing only, never order data.
// Deadlines chain off each other rather than off observation time, so a
// late tick does not drift the cycle.
//
// Scheduler is not safe for concurrent use; the engine serializes access
// under its own mutex.
type Scheduler struct {
	commitDur time.Duration
	revealDur time.Duration
	grace     time.Duration

	batchID       int64
	phase         domain.Phase
	deadline      time.Time
	settlingSince time.Time
}

// NewScheduler returns a Scheduler in the Commit phase for batch 1, with the
// commit deadline measured from start.
func NewScheduler(commitDur, revealDur, grace time.Duration, start time.Time) *Scheduler {
	return &Scheduler{
		commitDur: commitDur,
		revealDur: revealDur,
		grace:     grace,
		batchID:   1,
		phase:     domain.PhaseCommit,
		deadline:  start.Add(commitDur),
	}
}

// Phase returns the current phase. Pure read.
func (s *Scheduler) Phase() domain.Phase { return s.phase }

// BatchID returns the current batch ID. Pure read.
func (s *Scheduler) BatchID() int64 { return s.batchID }

// Deadline returns the absolute end of the current phase. During Settling
// the deadline is the grace cutoff.
func (s *Scheduler) Deadline() time.Time {
	if s.phase == domain.PhaseSettling {
		return s.settlingSince.Add(s.grace)
	}
	return s.deadline
}

// TimeRemaining returns the time left in the current phase, floored at zero.
// Pure read.
func (s *Scheduler) TimeRemaining(now time.Time) time.Duration {
	d := s.Deadline().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Durations returns the configured commit and reveal durations.
func (s *Scheduler) Durations() (commit, reveal time.Duration) {
	return s.commitDur, s.revealDur
}

// Tick advances past any elapsed deadline and reports whether a transition
// occurred. Calling it before the deadline is an idempotent no-op. At most
// one transition happens per call; the engine must act on each transition
// (resolving reveals, running settlement) before ticking again.
func (s *Scheduler) Tick(now time.Time) (domain.Phase, bool) {
	switch s.phase {
	case domain.PhaseCommit:
		if !now.Before(s.deadline) {
			s.phase = domain.PhaseReveal
			s.deadline = s.deadline.Add(s.revealDur)
			return s.phase, true
		}
	case domain.PhaseReveal:
		if !now.Before(s.deadline) {
			s.phase = domain.PhaseSettling
			s.settlingSince = s.deadline
			return s.phase, true
		}
	case domain.PhaseSettling:
		// Ends only via CompleteSettling; the engine checks GraceExceeded.
	}
	return s.phase, false
}

// GraceExceeded reports whether settlement has overrun its bounded grace
// period. The engine force-advances when this trips so the cycle never
// deadlocks waiting on settlement.
func (s *Scheduler) GraceExceeded(now time.Time) bool {
	return s.phase == domain.PhaseSettling && now.After(s.settlingSince.Add(s.grace))
}

// CompleteSettling closes the Settling phase and opens the Commit phase of
// the next batch. The next commit deadline is measured from now because
// settling has no fixed duration.
func (s *Scheduler) CompleteSettling(now time.Time) {
	if s.phase != domain.PhaseSettling {
		return
	}
	s.batchID++
	s.phase = domain.PhaseCommit
	s.deadline = now.Add(s.commitDur)
	s.settlingSince = time.Time{}
}
