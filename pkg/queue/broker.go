// Package queue provides the named FIFO broker the engine consumes its
// dedicated "workflows" queue from (§2 "Work Queue"), plus the worker pool
// that claims and executes messages end-to-end. Grounded on the teacher's
// pkg/queue/pool.go and pkg/queue/worker.go, adapted from session-claiming to
// execution-claiming and backed by Redis (no broker exists in the teacher's
// own stack; redis/go-redis/v9 is adopted from jordigilh-kubernaut's go.mod
// per spec §1's explicit mention of "Postgres and Redis").
package queue

import (
	"context"
	"time"
)

// WorkflowsQueueName is the single dedicated queue the engine consumes from
// (§2 "Work Queue": "a dedicated workflows queue").
const WorkflowsQueueName = "workflows"

// TriggerMessage is the queue wire format (§6 "Queue message format").
// Consumers must tolerate duplicate delivery (at-least-once, §1 Non-goals).
type TriggerMessage struct {
	ExecutionID   string    `json:"execution_id"`
	ArticleID     string    `json:"article_id"`
	ConfigVersion int       `json:"config_version"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Broker is the narrow FIFO interface the Trigger Surface publishes to and
// the worker pool consumes from.
type Broker interface {
	Publish(ctx context.Context, queueName string, msg TriggerMessage) error

	// Consume long-polls queueName for the next message, blocking up to the
	// implementation's own poll timeout. Returns (nil, false, nil) on a
	// timeout with no message available, matching the teacher's worker loop
	// shape (poll, nothing found, loop again) rather than returning an error
	// for the common "empty queue" case.
	Consume(ctx context.Context, queueName string) (*TriggerMessage, bool, error)
}
