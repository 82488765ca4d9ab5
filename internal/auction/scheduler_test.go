package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendtrade/auctiond/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler() *Scheduler {
	return NewScheduler(30*time.Second, 15*time.Second, 10*time.Second, t0)
}

func TestSchedulerStartsInCommit(t *testing.T) {
	s := newTestScheduler()

	assert.Equal(t, domain.PhaseCommit, s.Phase())
	assert.Equal(t, int64(1), s.BatchID())
	assert.Equal(t, t0.Add(30*time.Second), s.Deadline())
}

func TestSchedulerTickBeforeDeadlineIsNoOp(t *testing.T) {
	s := newTestScheduler()

	for _, dt := range []time.Duration{0, time.Second, 29 * time.Second} {
		phase, changed := s.Tick(t0.Add(dt))
		assert.False(t, changed, "tick at +%s should not transition", dt)
		assert.Equal(t, domain.PhaseCommit, phase)
	}
}

func TestSchedulerPhaseCycle(t *testing.T) {
	s := newTestScheduler()

	phase, changed := s.Tick(t0.Add(30 * time.Second))
	require.True(t, changed)
	assert.Equal(t, domain.PhaseReveal, phase)
	assert.Equal(t, t0.Add(45*time.Second), s.Deadline())

	phase, changed = s.Tick(t0.Add(45 * time.Second))
	require.True(t, changed)
	assert.Equal(t, domain.PhaseSettling, phase)

	// Settling never auto-advances; only CompleteSettling ends it.
	_, changed = s.Tick(t0.Add(10 * time.Minute))
	assert.False(t, changed)

	s.CompleteSettling(t0.Add(46 * time.Second))
	assert.Equal(t, domain.PhaseCommit, s.Phase())
	assert.Equal(t, int64(2), s.BatchID())
	assert.Equal(t, t0.Add(76*time.Second), s.Deadline())
}

func TestSchedulerTickIdempotentAfterTransition(t *testing.T) {
	s := newTestScheduler()

	_, changed := s.Tick(t0.Add(30 * time.Second))
	require.True(t, changed)

	// A second tick at the same instant must not double-advance.
	phase, changed := s.Tick(t0.Add(30 * time.Second))
	assert.False(t, changed)
	assert.Equal(t, domain.PhaseReveal, phase)
}

func TestSchedulerLateTickDoesNotDrift(t *testing.T) {
	s := newTestScheduler()

	// The process stalls well past the commit deadline. The reveal deadline
	// still chains off the scheduled commit deadline, not the late tick.
	_, changed := s.Tick(t0.Add(42 * time.Second))
	require.True(t, changed)
	assert.Equal(t, domain.PhaseReveal, s.Phase())
	assert.Equal(t, t0.Add(45*time.Second), s.Deadline())
}

func TestSchedulerOneTransitionPerTick(t *testing.T) {
	s := newTestScheduler()

	// Even if both deadlines have elapsed, a single tick advances one phase
	// so the engine can act on each boundary.
	phase, changed := s.Tick(t0.Add(2 * time.Minute))
	require.True(t, changed)
	assert.Equal(t, domain.PhaseReveal, phase)

	phase, changed = s.Tick(t0.Add(2 * time.Minute))
	require.True(t, changed)
	assert.Equal(t, domain.PhaseSettling, phase)
}

func TestSchedulerGraceExceeded(t *testing.T) {
	s := newTestScheduler()
	s.Tick(t0.Add(30 * time.Second))
	s.Tick(t0.Add(45 * time.Second))
	require.Equal(t, domain.PhaseSettling, s.Phase())

	assert.False(t, s.GraceExceeded(t0.Add(45*time.Second)))
	assert.False(t, s.GraceExceeded(t0.Add(55*time.Second)))
	assert.True(t, s.GraceExceeded(t0.Add(55*time.Second+time.Millisecond)))

	// Grace is measured from the reveal deadline even when the settling
	// transition was observed late.
	late := newTestScheduler()
	late.Tick(t0.Add(30 * time.Second))
	late.Tick(t0.Add(50 * time.Second))
	assert.True(t, late.GraceExceeded(t0.Add(56*time.Second)))
}

func TestSchedulerCompleteSettlingOutsideSettlingIsNoOp(t *testing.T) {
	s := newTestScheduler()

	s.CompleteSettling(t0.Add(5 * time.Second))
	assert.Equal(t, int64(1), s.BatchID())
	assert.Equal(t, domain.PhaseCommit, s.Phase())
	assert.Equal(t, t0.Add(30*time.Second), s.Deadline())
}

func TestSchedulerTimeRemaining(t *testing.T) {
	s := newTestScheduler()

	assert.Equal(t, 30*time.Second, s.TimeRemaining(t0))
	assert.Equal(t, 10*time.Second, s.TimeRemaining(t0.Add(20*time.Second)))
	assert.Equal(t, time.Duration(0), s.TimeRemaining(t0.Add(time.Hour)), "floored at zero")
}
