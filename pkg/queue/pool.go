package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool manages a fixed-size pool of Workers, all consuming the same queue
// through the same Runner (§5 "a pool of worker processes"). Grounded on the
// teacher's pkg/queue/pool.go WorkerPool, generalized to the execution-level
// Runner contract instead of a session executor.
type Pool struct {
	processID string
	broker    Broker
	runner    Runner
	queue     string
	count     int

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	orphanInterval time.Duration
	orphanReclaim  OrphanReclaimer
}

// OrphanReclaimer resets running executions whose heartbeat has gone stale
// back to queued (spec's supplemented heartbeat/orphan-reclaim feature,
// grounded on the teacher's orphan-detection sweep over last_interaction_at).
type OrphanReclaimer interface {
	ReclaimOrphans(ctx context.Context, olderThanSeconds int) (int, error)
}

// NewPool builds a Pool of count Workers.
func NewPool(processID string, broker Broker, runner Runner, count int, orphanReclaim OrphanReclaimer, orphanInterval time.Duration) *Pool {
	if orphanInterval <= 0 {
		orphanInterval = time.Minute
	}
	return &Pool{
		processID: processID, broker: broker, runner: runner, queue: WorkflowsQueueName,
		count: count, workers: make([]*Worker, 0, count), stopCh: make(chan struct{}),
		orphanInterval: orphanInterval, orphanReclaim: orphanReclaim,
	}
}

// Start spawns the worker goroutines and the orphan-reclaim background loop.
// Safe to call once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("pool already started, ignoring duplicate Start call", "process_id", p.processID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "process_id", p.processID, "worker_count", p.count)
	for i := 0; i < p.count; i++ {
		id := fmt.Sprintf("%s-worker-%d", p.processID, i)
		w := NewWorker(id, p.broker, p.runner, p.queue)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	if p.orphanReclaim != nil {
		p.wg.Add(1)
		go p.runOrphanReclaim(ctx)
	}
}

// Stop signals every worker to finish its current execution and stop, then
// waits for them (graceful shutdown, §5).
func (p *Pool) Stop() {
	slog.Info("stopping worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) runOrphanReclaim(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.orphanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := p.orphanReclaim.ReclaimOrphans(ctx, int(3*p.orphanInterval/time.Second))
			if err != nil {
				slog.Error("orphan reclaim failed", "err", err)
				continue
			}
			if reclaimed > 0 {
				slog.Info("reclaimed orphaned executions", "count", reclaimed)
			}
		}
	}
}

// Health returns a point-in-time snapshot of every worker in the pool.
func (p *Pool) Health() []WorkerHealth {
	out := make([]WorkerHealth, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Health())
	}
	return out
}
