package geocode

import (
	"context"
	"sync"
	"time"

	"photo-ingest/internal/metrics"
)

// RateGate enforces a minimum interval between calls across every goroutine
// that shares it. The mutex is held for the whole wait so callers are spaced
// one interval apart rather than all releasing at once.
type RateGate struct {
	mu          sync.Mutex
	lastCall    time.Time
	minInterval time.Duration
}

// NewRateGate creates a gate with the given minimum inter-call interval.
func NewRateGate(minInterval time.Duration) *RateGate {
	return &RateGate{minInterval: minInterval}
}

// Wait blocks until at least the configured interval has passed since the
// previous caller was released, then records the release time. Returns the
// context error if ctx is done before the gate opens.
func (g *RateGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delay := g.minInterval - time.Since(g.lastCall)
	if delay > 0 {
		metrics.GeocodeGateWait.Observe(delay.Seconds())
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		metrics.GeocodeGateWait.Observe(0)
	}

	g.lastCall = time.Now()
	return nil
}
