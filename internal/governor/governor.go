// Package governor throttles scan throughput based on system load,
// memory pressure, request quotas, and time-of-day policy. Every loop
// that processes many items consults it between items.
package governor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/metrics"
	"github.com/openwpsec/guard/pkg/logger"
)

// pauseDuration is how long one governor-imposed pause lasts.
const pauseDuration = time.Second

// Governor decides, per invocation, whether to pause before doing more
// work. All checks fail open: an internal error is logged and treated
// as "do not throttle".
type Governor struct {
	cfg *config.GovernorConfig
	log *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	counters map[string]int

	// Injectable for tests.
	loadAvg func() (float64, error)
	memUsed func() uint64
	memSize uint64
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
}

// New creates a governor.
func New(cfg *config.GovernorConfig, memoryLimit int64, log *logger.Logger) *Governor {
	return &Governor{
		cfg:      cfg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		counters: make(map[string]int),
		loadAvg:  readLoadAvg,
		memUsed:  heapInUse,
		memSize:  uint64(memoryLimit),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait pauses the caller when any throttle condition holds. It returns
// early when ctx is cancelled.
func (g *Governor) Wait(ctx context.Context) {
	throttle, trigger := g.ShouldThrottle()
	if !throttle {
		return
	}
	metrics.ThrottlePausesTotal.WithLabelValues(trigger).Inc()
	g.log.Debug("governor pause", "trigger", trigger)
	g.sleep(ctx, pauseDuration)
}

// ShouldThrottle evaluates all throttle conditions; any true condition
// triggers a pause. The returned trigger names the first condition that
// fired.
func (g *Governor) ShouldThrottle() (bool, string) {
	load, err := g.loadAvg()
	if err != nil {
		g.log.Warn("load average unavailable, failing open", "error", err.Error())
		load = 0
	}

	if load > g.cfg.CPUThreshold {
		return true, "cpu"
	}

	if g.memSize > 0 {
		used := g.memUsed()
		pct := float64(used) / float64(g.memSize) * 100
		if pct > g.cfg.MemoryPercent {
			return true, "memory"
		}
	}

	if g.overHourlyQuota() {
		return true, "quota"
	}

	// Stricter sub-check during peak hours: 80% of the CPU threshold.
	if g.inPeakHours() && load > g.cfg.CPUThreshold*0.8 {
		return true, "peak"
	}

	return false, ""
}

// overHourlyQuota checks the rolling hourly counter. The counter only
// increments on checks that do not themselves exceed the quota.
func (g *Governor) overHourlyQuota() bool {
	if g.cfg.HourlyQuota <= 0 {
		return false
	}

	key := g.now().Format("2006010215")

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.counters[key] >= g.cfg.HourlyQuota {
		return true
	}
	g.counters[key]++

	// Drop counters for past hours.
	for k := range g.counters {
		if k != key {
			delete(g.counters, k)
		}
	}
	return false
}

func (g *Governor) inPeakHours() bool {
	hour := g.now().Hour()
	start, end := g.cfg.PeakHoursStart, g.cfg.PeakHoursEnd
	if start <= end {
		return hour >= start && hour < end
	}
	// Window wraps midnight.
	return hour >= start || hour < end
}

// Throttle enforces a minimum inter-call interval for the named key.
// The first call for a key returns immediately; subsequent calls block
// until the configured interval has elapsed since the previous call.
func (g *Governor) Throttle(ctx context.Context, key string) error {
	g.mu.Lock()
	lim, ok := g.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.cfg.ThrottleInterval), 1)
		g.limiters[key] = lim
	}
	g.mu.Unlock()

	return lim.Wait(ctx)
}

// readLoadAvg reads the 1-minute load average from /proc/loadavg.
func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, fmt.Errorf("read /proc/loadavg: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("malformed /proc/loadavg")
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse load average: %w", err)
	}
	return load, nil
}

// heapInUse reports the process heap in use.
func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
