package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctihunt/workflowengine/pkg/catalog"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/queue"
)

// Engine is the public contract of §4.1: trigger, run, get, list. It is the
// single place that knows the stage DAG order, the state machine, and the
// retry/early-termination rules; stage executors themselves stay pure.
type Engine struct {
	store     catalog.Store
	broker    queue.Broker
	executors map[models.StageName]StageExecutor
	config    ConfigProvider
	logger    *slog.Logger
	deadline  time.Duration
	notifier  Notifier
}

// Notifier delivers execution/stage lifecycle notifications. It is the
// engine's narrow view of pkg/events.Publisher, kept as an interface so
// pkg/workflow never imports the Postgres-specific events package directly.
// Nil is a valid Engine field — notification is best-effort and optional.
type Notifier interface {
	NotifyExecutionStatus(ctx context.Context, executionID, articleID string, status models.ExecutionStatus, reason models.TerminationReason)
	NotifyStageStatus(ctx context.Context, executionID string, stage models.StageName, attempt int, status models.StageStatus)
}

// ConfigProvider resolves the currently active WorkflowConfig snapshot
// (§3 WorkflowConfig, §9 "snapshot by value at execution creation").
type ConfigProvider interface {
	// Current returns the presently active config, used when stamping a new
	// Execution's config_version at Trigger time.
	Current() models.WorkflowConfig
	// Resolve returns the exact snapshot for a historical version, used by a
	// running Execution so later edits never affect it mid-flight (§9).
	Resolve(version int) (models.WorkflowConfig, error)
}

// New builds an Engine. executors must cover every stage named in the DAG;
// a missing entry is a programming error caught by the first run() that
// reaches it (ConfigError, stage fails permanently, §7).
func New(store catalog.Store, broker queue.Broker, executors []StageExecutor, config ConfigProvider, logger *slog.Logger, executionDeadline time.Duration) *Engine {
	m := make(map[models.StageName]StageExecutor, len(executors))
	for _, e := range executors {
		m[e.Name()] = e
	}
	if logger == nil {
		logger = slog.Default()
	}
	if executionDeadline <= 0 {
		executionDeadline = 30 * time.Minute // §5 "default 30 minutes"
	}
	return &Engine{store: store, broker: broker, executors: m, config: config, logger: logger, deadline: executionDeadline}
}

// WithNotifier attaches a Notifier for execution/stage lifecycle delivery.
// Optional: an Engine with no notifier simply skips notification.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

func (e *Engine) notifyExecution(ctx context.Context, exec *models.Execution) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyExecutionStatus(ctx, exec.ID, exec.ArticleID, exec.Status, exec.TerminationReason)
}

func (e *Engine) notifyStage(ctx context.Context, executionID string, stage models.StageName, attempt int, status models.StageStatus) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyStageStatus(ctx, executionID, stage, attempt, status)
}

// TriggerResult is the Trigger public-contract response (§4.1).
type TriggerResult struct {
	ExecutionID string
	Accepted    bool
	Reason      string
}

// Trigger creates a new Execution iff no non-terminal execution exists for
// articleID, and enqueues a TriggerMessage (§4.1, §8 property 5 idempotence,
// §8 S4 duplicate-trigger scenario).
func (e *Engine) Trigger(ctx context.Context, articleID string) (*TriggerResult, error) {
	if _, err := e.store.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}

	cfg := e.config.Current()
	exec, err := e.store.CreateQueuedExecution(ctx, articleID, cfg.Version)
	if err != nil {
		if err == catalog.ErrAlreadyActive && exec != nil {
			return &TriggerResult{ExecutionID: exec.ID, Accepted: false, Reason: "already_active"}, nil
		}
		return nil, err
	}

	msg := queue.TriggerMessage{
		ExecutionID:   exec.ID,
		ArticleID:     exec.ArticleID,
		ConfigVersion: exec.ConfigVersion,
		EnqueuedAt:    nowFunc(),
	}
	if err := e.broker.Publish(ctx, queue.WorkflowsQueueName, msg); err != nil {
		return nil, fmt.Errorf("workflow: publish trigger message: %w", err)
	}

	return &TriggerResult{ExecutionID: exec.ID, Accepted: true}, nil
}

// Get returns an Execution plus its ordered StageResults (§4.1 get).
func (e *Engine) Get(ctx context.Context, executionID string) (*models.Execution, []*models.StageResult, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	results, err := e.store.ListStageResults(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	return exec, results, nil
}

// List returns recent executions, optionally scoped to one article (§4.1 list).
func (e *Engine) List(ctx context.Context, articleID string) ([]*models.Execution, error) {
	return e.store.ListExecutions(ctx, articleID)
}

// Cancel sets the cancel_requested flag observed by the next suspension
// point inside the running execution (§5, §6 cancel endpoint).
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	return e.store.RequestCancel(ctx, executionID)
}

// RunMessage consumes one queue.TriggerMessage, claims the named Execution,
// and advances it to a terminal state (§4.1 run(message)). Tolerates
// redelivery: ClaimByID fails closed if another worker already claimed it.
func (e *Engine) RunMessage(ctx context.Context, msg queue.TriggerMessage) error {
	exec, err := e.store.ClaimByID(ctx, msg.ExecutionID)
	if err != nil {
		if err == catalog.ErrNotClaimed {
			e.logger.Debug("execution already claimed, dropping duplicate delivery", "execution_id", msg.ExecutionID)
			return nil
		}
		return err
	}
	return e.runClaimed(ctx, exec)
}

// RunNext claims and runs the next queued execution directly against the
// store, independent of queue delivery. The worker pool and the
// orphan-reclaim sweep do not call it.
func (e *Engine) RunNext(ctx context.Context) (bool, error) {
	exec, ok, err := e.store.ClaimNext(ctx)
	if err != nil || !ok {
		return ok, err
	}
	return true, e.runClaimed(ctx, exec)
}

var nowFunc = time.Now
