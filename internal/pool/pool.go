package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"photo-ingest/internal/catalog"
	"photo-ingest/internal/logging"
	"photo-ingest/internal/metrics"
	"photo-ingest/internal/pipeline"
	"photo-ingest/internal/queue"
)

// Executor runs one task payload to completion. The production executor is
// *pipeline.Pipeline; tests substitute fakes.
type Executor interface {
	Run(ctx context.Context, payload queue.Payload, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// Config tunes the pool.
type Config struct {
	// Workers is the number of polling loops. Must be >= 1.
	Workers int
	// PollInterval is each worker's tick period. Workers are staggered by
	// PollInterval / Workers. Defaults to 1s.
	PollInterval time.Duration
	// EnableLoadBalancing turns on the periodic rebalance pass.
	EnableLoadBalancing bool
	// RebalanceInterval is the rebalance period. Defaults to 5m.
	RebalanceInterval time.Duration
	// StatsReportInterval, when positive, logs a stats snapshot on that
	// period.
	StatsReportInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RebalanceInterval <= 0 {
		c.RebalanceInterval = 5 * time.Minute
	}
	return c
}

// throughputWindow bounds the rolling completion history used for the
// throughput figure.
const throughputWindow = 5 * time.Minute

type worker struct {
	id int

	// minPriority biases which priority bands this worker claims from;
	// 0 claims everything, higher values skip the more urgent bands.
	minPriority atomic.Int64

	processed  atomic.Int64
	failures   atomic.Int64
	lastActive atomic.Int64 // unix seconds, 0 until the first claim

	// deltas consumed by the rebalance pass
	processedAtRebalance int64
	failuresAtRebalance  int64
}

// Pool owns the worker loops.
type Pool struct {
	cfg     Config
	store   *queue.Store
	catalog catalog.Catalog
	exec    Executor

	workers []*worker

	mu          sync.Mutex
	started     bool
	stop        chan struct{}
	wg          sync.WaitGroup
	completions []time.Time // rolling, pruned to throughputWindow
}

// New builds a pool. The catalog receives the photo record of every
// successful photo task.
func New(cfg Config, store *queue.Store, cat catalog.Catalog, exec Executor) *Pool {
	cfg = cfg.withDefaults()

	workers := make([]*worker, cfg.Workers)
	for i := range workers {
		workers[i] = &worker{id: i}
	}

	return &Pool{
		cfg:     cfg,
		store:   store,
		catalog: cat,
		exec:    exec,
		workers: workers,
	}
}

// Start launches the worker loops and, when configured, the rebalance and
// stats timers. Start is not restartable after Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true
	p.stop = make(chan struct{})

	metrics.PoolWorkers.Set(float64(p.cfg.Workers))
	logging.Info("Starting worker pool: %d worker(s), %v poll interval, load balancing %v",
		p.cfg.Workers, p.cfg.PollInterval, p.cfg.EnableLoadBalancing)

	stagger := p.cfg.PollInterval / time.Duration(p.cfg.Workers)
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.runWorker(ctx, w, time.Duration(w.id)*stagger)
	}

	if p.cfg.EnableLoadBalancing {
		p.wg.Add(1)
		go p.runRebalancer(ctx)
	}
	if p.cfg.StatsReportInterval > 0 {
		p.wg.Add(1)
		go p.runStatsReporter(ctx)
	}
	return nil
}

// Stop halts polling and waits for in-flight tasks to finish. In-flight
// work is never interrupted.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	p.mu.Unlock()

	logging.Info("Worker pool draining...")
	p.wg.Wait()
	logging.Info("Worker pool stopped")
}

// runWorker is one claim/execute loop. The initial offset staggers the
// ticks across workers.
func (p *Pool) runWorker(ctx context.Context, w *worker, offset time.Duration) {
	defer p.wg.Done()

	select {
	case <-time.After(offset):
	case <-p.stop:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	logging.Debug("Worker %d polling every %v (offset %v)", w.id, p.cfg.PollInterval, offset)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, w)
		}
	}
}

// pollOnce claims at most one task and runs it to a terminal transition.
func (p *Pool) pollOnce(ctx context.Context, w *worker) {
	task, err := p.store.ClaimNext(ctx, int(w.minPriority.Load()))
	if err != nil {
		logging.Error("Worker %d claim failed: %v", w.id, err)
		return
	}
	if task == nil {
		return
	}

	w.lastActive.Store(time.Now().Unix())
	p.execute(ctx, w, task)
}

// execute runs the pipeline for a claimed task and resolves its status.
// Panics and errors are both contained here; the worker loop always
// survives.
func (p *Pool) execute(ctx context.Context, w *worker, task *queue.Task) {
	start := time.Now()
	logging.Debug("Worker %d executing task %d (%s %s, attempt %d/%d)",
		w.id, task.ID, task.Payload.Kind, task.Payload.StorageKey, task.Attempts+1, task.MaxAttempts)

	defer func() {
		metrics.PoolTaskDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			w.failures.Add(1)
			logging.Error("Worker %d panic on task %d: %v", w.id, task.ID, r)
			p.resolveFailure(ctx, task, fmt.Errorf("panic: %v", r))
		}
	}()

	progress := func(stage string) {
		if err := p.store.MarkStage(ctx, task.ID, stage); err != nil {
			logging.Debug("Stage mark failed for task %d: %v", task.ID, err)
		}
	}

	result, err := p.exec.Run(ctx, task.Payload, progress)
	if err != nil {
		w.failures.Add(1)
		p.resolveFailure(ctx, task, err)
		return
	}

	if result != nil && result.Photo != nil {
		if err := p.catalog.Insert(ctx, result.Photo); err != nil {
			w.failures.Add(1)
			p.resolveFailure(ctx, task, fmt.Errorf("catalog insert: %w", err))
			return
		}
	}

	if err := p.store.Complete(ctx, task.ID); err != nil {
		logging.Error("Worker %d could not complete task %d: %v", w.id, task.ID, err)
		return
	}

	w.processed.Add(1)
	p.recordCompletion()
	logging.Info("Worker %d completed task %d in %v", w.id, task.ID, time.Since(start).Round(time.Millisecond))
}

// resolveFailure routes a pipeline error to the right queue transition:
// deterministic failure classes skip the remaining attempt budget.
func (p *Pool) resolveFailure(ctx context.Context, task *queue.Task, taskErr error) {
	var err error
	if pipeline.Retryable(taskErr) {
		err = p.store.FailOrRetry(ctx, task.ID, taskErr)
	} else {
		err = p.store.Fail(ctx, task.ID, taskErr)
	}
	if err != nil {
		logging.Error("Failed to resolve task %d after error %q: %v", task.ID, taskErr, err)
	}
}

func (p *Pool) recordCompletion() {
	now := time.Now()
	p.mu.Lock()
	p.completions = append(p.completions, now)
	p.pruneCompletionsLocked(now)
	p.mu.Unlock()
}

func (p *Pool) pruneCompletionsLocked(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	first := 0
	for first < len(p.completions) && p.completions[first].Before(cutoff) {
		first++
	}
	if first > 0 {
		p.completions = append(p.completions[:0], p.completions[first:]...)
	}
}

// runRebalancer periodically re-biases worker priority bands.
func (p *Pool) runRebalancer(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.RebalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Rebalance()
		}
	}
}

// Rebalance inspects per-worker deltas since the previous pass and biases
// struggling workers away from the most urgent priority band, so a worker
// stuck on slow or failing tasks stops monopolizing low-latency work.
// Healthy workers always return to claiming everything.
func (p *Pool) Rebalance() {
	metrics.PoolRebalances.Inc()

	for _, w := range p.workers {
		processed := w.processed.Load()
		failures := w.failures.Load()
		processedDelta := processed - w.processedAtRebalance
		failureDelta := failures - w.failuresAtRebalance
		w.processedAtRebalance = processed
		w.failuresAtRebalance = failures

		if failureDelta > processedDelta && failureDelta > 0 {
			if w.minPriority.Swap(1) != 1 {
				logging.Info("Rebalance: worker %d biased off the urgent band (%d failures vs %d completions)",
					w.id, failureDelta, processedDelta)
			}
		} else if w.minPriority.Swap(0) != 0 {
			logging.Info("Rebalance: worker %d restored to all priority bands", w.id)
		}
	}
}
