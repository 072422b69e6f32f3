package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock, opts ...Option) *Breaker {
	return New("timeline-cache", append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     State
	}{
		{name: "below threshold stays closed", failures: 2, want: StateClosed},
		{name: "threshold opens", failures: 3, want: StateOpen},
		{name: "further failures keep it open", failures: 7, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("timeline-cache", WithFailureThreshold(3))
			opened := 0
			for i := 0; i < tt.failures; i++ {
				if _, change := b.RecordFailure(); change.Opened {
					opened++
				}
			}
			assert.Equal(t, tt.want, b.State())
			if tt.want == StateOpen {
				assert.Equal(t, 1, opened, "the open transition is reported once")
			}
		})
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b := New("timeline-cache", WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_AllowWhileOpen(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clock, WithFailureThreshold(1), WithProbeInterval(time.Second))

	require.True(t, b.Allow())
	b.RecordFailure()
	require.True(t, b.IsOpen())

	for i := 0; i < 5; i++ {
		assert.False(t, b.Allow(), "calls are refused until the probe interval passes")
	}

	clock.Advance(time.Second)
	assert.True(t, b.Allow(), "one probe after the interval")
	assert.False(t, b.Allow(), "only one probe per interval")

	b.RecordFailure()
	assert.False(t, b.Allow())
	clock.Advance(time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_ProbesCloseAfterSuccessThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clock, WithFailureThreshold(1), WithSuccessThreshold(2), WithProbeInterval(time.Second))
	b.RecordFailure()

	clock.Advance(time.Second)
	require.True(t, b.Allow())
	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)
	assert.False(t, b.Allow(), "still open after one good probe")

	clock.Advance(time.Second)
	require.True(t, b.Allow())
	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeRestartsSuccessCount(t *testing.T) {
	b := New("timeline-cache", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreaker_DefaultsAndReset(t *testing.T) {
	b := New("timeline-cache", WithFailureThreshold(0), WithSuccessThreshold(-1), WithProbeInterval(0))
	assert.Equal(t, "timeline-cache", b.Name())
	assert.Equal(t, defaultProbeInterval, b.probeInterval)

	for i := 0; i < defaultFailureThreshold; i++ {
		b.RecordFailure()
	}
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
