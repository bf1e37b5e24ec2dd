// Package events delivers execution-lifecycle notifications via PostgreSQL
// NOTIFY/LISTEN, the supplemented real-time surface the distilled spec
// omitted. Grounded directly on the teacher's pkg/events.EventPublisher:
// same pg_notify-in-transaction technique, same transient/persistent event
// split, generalized from session/timeline events to execution/stage
// events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// Event type discriminators, mirroring the teacher's flat string-constant
// style rather than a closed Go enum (clients are non-Go consumers).
const (
	EventTypeExecutionStatus = "execution.status"
	EventTypeStageStatus     = "stage.status"
)

// notifyLimit is PostgreSQL's NOTIFY payload ceiling (8000 bytes); stay
// comfortably under it, matching the teacher's truncation threshold.
const notifyLimit = 7900

// ExecutionChannel returns the NOTIFY channel an execution's lifecycle
// events are published to. Format: "execution:{execution_id}".
func ExecutionChannel(executionID string) string {
	return "execution:" + executionID
}

// GlobalExecutionsChannel carries a transient copy of every execution
// status transition, for a dashboard list view subscribed to all activity.
const GlobalExecutionsChannel = "executions"

// ExecutionStatusPayload is published whenever an Execution's status column
// changes (queued → running → completed/failed/terminated_early).
type ExecutionStatusPayload struct {
	ExecutionID       string                   `json:"execution_id"`
	ArticleID         string                   `json:"article_id"`
	Status            models.ExecutionStatus   `json:"status"`
	TerminationReason models.TerminationReason `json:"termination_reason,omitempty"`
	Timestamp         time.Time                `json:"timestamp"`
}

// StageStatusPayload is published on each stage attempt's terminal outcome.
type StageStatusPayload struct {
	ExecutionID string             `json:"execution_id"`
	Stage       models.StageName   `json:"stage"`
	Attempt     int                `json:"attempt"`
	Status      models.StageStatus `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Publisher publishes execution-lifecycle events for real-time delivery.
// Persistent events are stored in the events table then broadcast via
// NOTIFY within the same transaction (pg_notify is held until COMMIT);
// transient events are NOTIFY-only.
type Publisher struct {
	pool *pgxpool.Pool
}

// NewPublisher builds a Publisher over the shared catalog pool.
func NewPublisher(pool *pgxpool.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// PublishExecutionStatus persists and broadcasts an execution.status event
// to both the execution's own channel and the global executions channel.
func (p *Publisher) PublishExecutionStatus(ctx context.Context, payload ExecutionStatusPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal execution status payload: %w", err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, EventTypeExecutionStatus, payload.ExecutionID, ExecutionChannel(payload.ExecutionID), body); err != nil {
		firstErr = err
	}
	if err := p.notifyOnly(ctx, GlobalExecutionsChannel, body); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishStageStatus broadcasts a stage.status transient event (no DB
// persistence — the StageResult row already is the durable record).
func (p *Publisher) PublishStageStatus(ctx context.Context, payload StageStatusPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stage status payload: %w", err)
	}
	return p.notifyOnly(ctx, ExecutionChannel(payload.ExecutionID), body)
}

func (p *Publisher) persistAndNotify(ctx context.Context, eventType, executionID, channel string, payload []byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO events (event_type, execution_id, channel, payload, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		eventType, executionID, channel, payload, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	notifyPayload := truncateIfNeeded(payload)
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

func (p *Publisher) notifyOnly(ctx context.Context, channel string, payload []byte) error {
	notifyPayload := truncateIfNeeded(payload)
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// truncateIfNeeded keeps the NOTIFY payload under PostgreSQL's 8000-byte
// limit; oversized payloads are replaced with a minimal envelope since the
// durable record already lives in the events table.
func truncateIfNeeded(payload []byte) string {
	if len(payload) <= notifyLimit {
		return string(payload)
	}
	return fmt.Sprintf(`{"truncated":true,"size":%d}`, len(payload))
}

// NotifyExecutionStatus implements workflow.Notifier, logging failures
// instead of propagating them: notification is best-effort and must never
// block or fail an execution's state transition.
func (p *Publisher) NotifyExecutionStatus(ctx context.Context, executionID, articleID string, status models.ExecutionStatus, reason models.TerminationReason) {
	err := p.PublishExecutionStatus(ctx, ExecutionStatusPayload{
		ExecutionID: executionID, ArticleID: articleID, Status: status,
		TerminationReason: reason, Timestamp: time.Now(),
	})
	if err != nil {
		slog.Error("publish execution status failed", "execution_id", executionID, "err", err)
	}
}

// NotifyStageStatus implements workflow.Notifier.
func (p *Publisher) NotifyStageStatus(ctx context.Context, executionID string, stage models.StageName, attempt int, status models.StageStatus) {
	err := p.PublishStageStatus(ctx, StageStatusPayload{
		ExecutionID: executionID, Stage: stage, Attempt: attempt, Status: status, Timestamp: time.Now(),
	})
	if err != nil {
		slog.Error("publish stage status failed", "execution_id", executionID, "stage", stage, "err", err)
	}
}
