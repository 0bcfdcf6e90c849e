package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/pkg/logger"
)

func newTestGovernor(cfg *config.GovernorConfig) *Governor {
	g := New(cfg, 128<<20, logger.NewNop())
	g.loadAvg = func() (float64, error) { return 0.1, nil }
	g.memUsed = func() uint64 { return 0 }
	return g
}

func TestShouldThrottle_CPU(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:  2.0,
		MemoryPercent: 80,
		HourlyQuota:   1000,
	})
	g.loadAvg = func() (float64, error) { return 3.5, nil }

	throttle, trigger := g.ShouldThrottle()
	assert.True(t, throttle)
	assert.Equal(t, "cpu", trigger)
}

func TestShouldThrottle_Memory(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:  2.0,
		MemoryPercent: 80,
		HourlyQuota:   1000,
	})
	// 90% of the 128MB limit.
	g.memUsed = func() uint64 { return 115 << 20 }

	throttle, trigger := g.ShouldThrottle()
	assert.True(t, throttle)
	assert.Equal(t, "memory", trigger)
}

func TestShouldThrottle_HourlyQuota(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:  2.0,
		MemoryPercent: 80,
		HourlyQuota:   3,
	})

	for i := 0; i < 3; i++ {
		throttle, _ := g.ShouldThrottle()
		assert.False(t, throttle, "check %d should be under quota", i)
	}

	throttle, trigger := g.ShouldThrottle()
	assert.True(t, throttle)
	assert.Equal(t, "quota", trigger)
}

func TestShouldThrottle_QuotaResetsNextHour(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:  2.0,
		MemoryPercent: 80,
		HourlyQuota:   1,
	})

	base := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	throttle, _ := g.ShouldThrottle()
	assert.False(t, throttle)
	throttle, _ = g.ShouldThrottle()
	assert.True(t, throttle)

	g.now = func() time.Time { return base.Add(time.Hour) }
	throttle, _ = g.ShouldThrottle()
	assert.False(t, throttle)
}

func TestShouldThrottle_PeakHours(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:   2.0,
		MemoryPercent:  80,
		HourlyQuota:    1000,
		PeakHoursStart: 9,
		PeakHoursEnd:   18,
	})
	// Load under the threshold but over 80% of it.
	g.loadAvg = func() (float64, error) { return 1.7, nil }
	g.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	throttle, trigger := g.ShouldThrottle()
	assert.True(t, throttle)
	assert.Equal(t, "peak", trigger)

	// Same load outside peak hours does not throttle.
	g.now = func() time.Time {
		return time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
	}
	throttle, _ = g.ShouldThrottle()
	assert.False(t, throttle)
}

func TestShouldThrottle_FailsOpenOnLoadError(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:  2.0,
		MemoryPercent: 80,
		HourlyQuota:   1000,
	})
	g.loadAvg = func() (float64, error) { return 0, assert.AnError }

	throttle, _ := g.ShouldThrottle()
	assert.False(t, throttle)
}

func TestThrottle_MinimumInterval(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:     2.0,
		MemoryPercent:    80,
		ThrottleInterval: time.Second,
	})

	ctx := context.Background()

	start := time.Now()
	require.NoError(t, g.Throttle(ctx, "x"))
	first := time.Since(start)
	assert.Less(t, first, 50*time.Millisecond, "first call must not block")

	start = time.Now()
	require.NoError(t, g.Throttle(ctx, "x"))
	second := time.Since(start)
	assert.InDelta(t, time.Second.Seconds(), second.Seconds(), 0.05,
		"second call should sleep out the remaining interval")
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	g := newTestGovernor(&config.GovernorConfig{
		CPUThreshold:     2.0,
		MemoryPercent:    80,
		ThrottleInterval: time.Second,
	})

	ctx := context.Background()
	require.NoError(t, g.Throttle(ctx, "a"))

	start := time.Now()
	require.NoError(t, g.Throttle(ctx, "b"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
