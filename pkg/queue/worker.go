package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Runner is the narrow interface a Worker drives: consuming a single
// TriggerMessage to completion. pkg/workflow.Engine implements this.
type Runner interface {
	RunMessage(ctx context.Context, msg TriggerMessage) error
}

// WorkerStatus mirrors the teacher's idle/working worker health status.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker polls the broker's workflows queue and runs each message to
// completion end-to-end (§5 "parallel workers, each handling one execution
// end-to-end"). Grounded on the teacher's pkg/queue/worker.go poll loop,
// generalized from session-claiming to execution-claiming.
type Worker struct {
	id     string
	broker Broker
	runner Runner
	queue  string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu               sync.RWMutex
	status           WorkerStatus
	currentExecution string
	processedCount   int
	lastActivity     time.Time
}

// NewWorker creates a Worker consuming queueName via broker, running each
// claimed message through runner.
func NewWorker(id string, broker Broker, runner Runner, queueName string) *Worker {
	return &Worker{
		id: id, broker: broker, runner: runner, queue: queueName,
		stopCh: make(chan struct{}), status: WorkerStatusIdle, lastActivity: time.Now(),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current message to
// finish (graceful shutdown; workers never abandon an in-flight execution).
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// WorkerHealth is a point-in-time snapshot for observability/debugging.
type WorkerHealth struct {
	ID               string
	Status           WorkerStatus
	CurrentExecution string
	Processed        int
	LastActivity     time.Time
}

func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{ID: w.id, Status: w.status, CurrentExecution: w.currentExecution, Processed: w.processedCount, LastActivity: w.lastActivity}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			w.pollAndProcess(ctx, log)
		}
	}
}

func (w *Worker) pollAndProcess(ctx context.Context, log *slog.Logger) {
	msg, ok, err := w.broker.Consume(ctx, w.queue)
	if err != nil {
		log.Error("consume failed", "err", err)
		w.sleep(time.Second)
		return
	}
	if !ok {
		// Empty queue: jittered sleep before the next long-poll, matching
		// the teacher's poll-interval-with-jitter idiom.
		w.sleep(pollJitter())
		return
	}

	w.setStatus(WorkerStatusWorking, msg.ExecutionID)
	defer w.setStatus(WorkerStatusIdle, "")

	if err := w.runner.RunMessage(ctx, *msg); err != nil {
		log.Error("run message failed", "execution_id", msg.ExecutionID, "err", err)
	}

	w.mu.Lock()
	w.processedCount++
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) setStatus(status WorkerStatus, executionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentExecution = executionID
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollJitter returns a randomized short sleep so a pool of workers doesn't
// thunder the broker in lockstep after an empty poll.
func pollJitter() time.Duration {
	return time.Duration(500+rand.IntN(500)) * time.Millisecond
}
