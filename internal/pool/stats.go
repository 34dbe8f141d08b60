package pool

import (
	"context"
	"time"

	"photo-ingest/internal/logging"
	"photo-ingest/internal/queue"
)

// WorkerStats is one worker's health snapshot.
type WorkerStats struct {
	ID          int       `json:"id"`
	Processed   int64     `json:"processed"`
	Failures    int64     `json:"failures"`
	LastActive  time.Time `json:"lastActive"`
	MinPriority int       `json:"minPriority"`
}

// Stats is an on-demand snapshot of pool and queue health.
type Stats struct {
	WorkerCount         int                  `json:"workerCount"`
	Workers             []WorkerStats        `json:"workers"`
	StatusCounts        map[queue.Status]int `json:"statusCounts"`
	AverageAttempts     float64              `json:"averageAttempts"`
	ThroughputPerMinute float64              `json:"throughputPerMinute"`
}

// Stats recomputes the snapshot from the store and worker counters.
func (p *Pool) Stats(ctx context.Context) (*Stats, error) {
	counts, err := p.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := p.store.AverageAttempts(ctx)
	if err != nil {
		return nil, err
	}

	workers := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		ws := WorkerStats{
			ID:          w.id,
			Processed:   w.processed.Load(),
			Failures:    w.failures.Load(),
			MinPriority: int(w.minPriority.Load()),
		}
		if last := w.lastActive.Load(); last != 0 {
			ws.LastActive = time.Unix(last, 0)
		}
		workers[i] = ws
	}

	now := time.Now()
	p.mu.Lock()
	p.pruneCompletionsLocked(now)
	recent := len(p.completions)
	p.mu.Unlock()

	return &Stats{
		WorkerCount:         p.cfg.Workers,
		Workers:             workers,
		StatusCounts:        counts,
		AverageAttempts:     avg,
		ThroughputPerMinute: float64(recent) / throughputWindow.Minutes(),
	}, nil
}

func (p *Pool) runStatsReporter(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.StatsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := p.Stats(ctx)
			if err != nil {
				logging.Warn("Stats snapshot failed: %v", err)
				continue
			}
			logging.Info("Queue: %d pending, %d in-progress, %d completed, %d failed; %.1f tasks/min, avg attempts %.2f",
				stats.StatusCounts[queue.StatusPending],
				stats.StatusCounts[queue.StatusInProgress],
				stats.StatusCounts[queue.StatusCompleted],
				stats.StatusCounts[queue.StatusFailed],
				stats.ThroughputPerMinute,
				stats.AverageAttempts)
		}
	}
}
