// Package catalog provides the durable relational store of articles,
// sources, executions, and per-stage results (spec §3). It is the
// persistence adapter layer: the engine depends only on the interfaces in
// this file, never on pgx types directly, mirroring how the teacher's
// queue/services packages depend on *ent.Client rather than raw SQL.
package catalog

import (
	"context"
	"errors"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// Sentinel errors returned by Store implementations.
var (
	ErrArticleNotFound   = errors.New("catalog: article not found")
	ErrExecutionNotFound = errors.New("catalog: execution not found")
	ErrAlreadyActive     = errors.New("catalog: article already has a non-terminal execution")
	ErrNotClaimed        = errors.New("catalog: execution was not claimed (status changed concurrently)")
)

// ArticleReader is the narrow read interface external collaborators
// (collectors, UI) and the engine use to read immutable article content.
// Source configuration and collection are out of scope (spec §1); this
// repo only consumes the read side.
type ArticleReader interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListArticlesAboveThreshold(ctx context.Context, threshold float64, sinceConfigVersion int) ([]*models.Article, error)
}

// ExecutionStore is the engine's durable state for Executions and
// StageResults (spec §3, §4.1). All write methods are scoped to the
// owning worker per the single-writer discipline in §3 "Ownership".
type ExecutionStore interface {
	// CreateQueuedExecution creates a new Execution row in status "queued"
	// iff no non-terminal execution exists for articleID. Otherwise it
	// returns the existing execution together with ErrAlreadyActive,
	// implementing the idempotent-trigger contract of §4.1/§8 property 5.
	CreateQueuedExecution(ctx context.Context, articleID string, configVersion int) (*models.Execution, error)

	// ActiveExecutionForArticle returns the existing non-terminal execution
	// for an article, if any.
	ActiveExecutionForArticle(ctx context.Context, articleID string) (*models.Execution, error)

	// ClaimNext atomically transitions one queued execution to running via
	// a conditional UPDATE ... WHERE status = 'queued' (the sole
	// synchronization primitive per spec §5 "Locking discipline"). Returns
	// (nil, false, nil) if no queued execution is available.
	ClaimNext(ctx context.Context) (*models.Execution, bool, error)

	// ClaimByID claims a specific execution by ID (used when a queue
	// message names one directly). Returns ErrNotClaimed if another worker
	// (or a redelivery) already claimed or transitioned it.
	ClaimByID(ctx context.Context, executionID string) (*models.Execution, error)

	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, articleID string) ([]*models.Execution, error)

	// AppendStageResult persists one stage attempt (append-only per §3).
	AppendStageResult(ctx context.Context, result *models.StageResult) error
	ListStageResults(ctx context.Context, executionID string) ([]*models.StageResult, error)

	// Heartbeat updates LastHeartbeatAt for orphan detection (spec's
	// supplemented feature, grounded on teacher's last_interaction_at).
	Heartbeat(ctx context.Context, executionID string) error

	// TransitionTerminal moves a running execution to a terminal status and
	// records its aggregated output/error. Only the owning worker calls this.
	TransitionTerminal(ctx context.Context, executionID string, exec *models.Execution) error

	// ReclaimOrphans resets running executions whose heartbeat is older than
	// threshold back to queued, returning how many were reclaimed.
	ReclaimOrphans(ctx context.Context, olderThanSeconds int) (int, error)

	// RequestCancel sets the cancel_requested flag observed by the next
	// suspension point inside a running execution (spec §5 cancellation).
	RequestCancel(ctx context.Context, executionID string) error
	CancelRequested(ctx context.Context, executionID string) (bool, error)
}

// Store is the full catalog surface the engine depends on.
type Store interface {
	ArticleReader
	ExecutionStore
}
