package accounting

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/radhhh/flae-bot/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func TestElapsedActiveAccruesWithTime(t *testing.T) {
	s := &domain.Session{StartedAt: t0, Phase: domain.Running{}}

	assert.Equal(t, time.Duration(0), Elapsed(s, t0))
	assert.Equal(t, minutes(10), Elapsed(s, t0.Add(minutes(10))))

	prev := time.Duration(0)
	for i := 0; i <= 120; i += 7 {
		got := Elapsed(s, t0.Add(minutes(i)))
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestElapsedConstantWhilePaused(t *testing.T) {
	s := &domain.Session{
		StartedAt:   t0,
		PausedTotal: minutes(5),
		Phase:       domain.Paused{Since: t0.Add(minutes(30))},
	}

	at := Elapsed(s, t0.Add(minutes(30)))
	assert.Equal(t, minutes(25), at)
	assert.Equal(t, at, Elapsed(s, t0.Add(minutes(45))))
	assert.Equal(t, at, Elapsed(s, t0.Add(5*time.Hour)))
	assert.Equal(t, minutes(20), PausedAt(s, t0.Add(minutes(45))))
}

func TestElapsedConstantWhenStopped(t *testing.T) {
	s := &domain.Session{
		StartedAt:   t0,
		PausedTotal: minutes(10),
		Phase:       domain.Stopped{At: t0.Add(minutes(100))},
	}

	assert.Equal(t, minutes(90), Elapsed(s, t0.Add(minutes(100))))
	assert.Equal(t, minutes(90), Elapsed(s, t0.Add(48*time.Hour)))

	s.Phase = domain.Confirmed{StoppedAt: t0.Add(minutes(100)), ConfirmedAt: t0.Add(minutes(120))}
	assert.Equal(t, minutes(90), Elapsed(s, t0.Add(48*time.Hour)))
}

func TestElapsedIncludesAdjustmentAndFloorsAtZero(t *testing.T) {
	s := &domain.Session{
		StartedAt:  t0,
		Adjustment: minutes(15),
		Phase:      domain.Stopped{At: t0.Add(minutes(30))},
	}
	assert.Equal(t, minutes(45), Elapsed(s, t0.Add(time.Hour)))

	s.Adjustment = -minutes(45)
	b := Compute(s, t0.Add(time.Hour))
	assert.Equal(t, -minutes(15), b.Raw)
	assert.Equal(t, time.Duration(0), b.Effective)
}

func TestClampAdjustment(t *testing.T) {
	s := &domain.Session{StartedAt: t0, Phase: domain.Stopped{At: t0.Add(minutes(5))}}
	now := t0.Add(time.Hour)

	applied, clamped := ClampAdjustment(s, -10000*time.Minute, now)
	assert.True(t, clamped)
	assert.Equal(t, -minutes(5), applied)

	s.Adjustment += applied
	assert.Equal(t, time.Duration(0), Elapsed(s, now))

	applied, clamped = ClampAdjustment(s, minutes(20), now)
	assert.False(t, clamped)
	assert.Equal(t, minutes(20), applied)
}

func TestClampAdjustmentHugeDeltaIsNotClamped(t *testing.T) {
	s := &domain.Session{StartedAt: t0, Phase: domain.Stopped{At: t0.Add(minutes(90))}}

	huge := time.Duration(math.MaxInt64)
	applied, clamped := ClampAdjustment(s, huge, t0.Add(time.Hour))
	assert.False(t, clamped)
	assert.Equal(t, huge, applied)
}

func TestAdjustmentFor(t *testing.T) {
	s := &domain.Session{
		StartedAt:   t0,
		PausedTotal: minutes(10),
		Phase:       domain.Stopped{At: t0.Add(minutes(100))},
	}
	now := t0.Add(2 * time.Hour)

	delta := AdjustmentFor(s, minutes(80), now)
	assert.Equal(t, -minutes(10), delta)
	s.Adjustment += delta
	assert.Equal(t, minutes(80), Elapsed(s, now))
}

func TestPauseCyclesAreIndependentOfCount(t *testing.T) {
	// Simulate clock-in, N pause/resume cycles of varying length, clock-out.
	cases := [][]time.Duration{
		nil,
		{minutes(10)},
		{minutes(1), minutes(2), minutes(3)},
		{minutes(5), minutes(5), minutes(5), minutes(5), minutes(5), minutes(5)},
	}
	for _, pauses := range cases {
		now := t0
		s := &domain.Session{StartedAt: t0, Phase: domain.Running{}}
		var pausedSum time.Duration
		for _, p := range pauses {
			now = now.Add(minutes(7))
			s.Phase = domain.Paused{Since: now}
			now = now.Add(p)
			s.PausedTotal += now.Sub(s.Phase.(domain.Paused).Since)
			s.Phase = domain.Running{}
			pausedSum += p
		}
		now = now.Add(minutes(3))
		s.Phase = domain.Stopped{At: now}

		assert.Equal(t, now.Sub(t0)-pausedSum, Elapsed(s, now.Add(time.Hour)))
	}
}
