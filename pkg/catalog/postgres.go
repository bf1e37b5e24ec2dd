package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ctihunt/workflowengine/pkg/models"
)

// PostgresStore is the pgx-backed Store implementation. It replaces the
// teacher's ent-generated client with hand-written SQL over pgxpool — see
// DESIGN.md "Persistence" for why ent itself is not used here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool (opened and migrated by
// pkg/database).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetArticle implements ArticleReader.
func (s *PostgresStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_id, canonical_url, title, content, filtered_content,
		       content_hash, published_at, threat_hunting_score, ml_hunt_score, metadata
		FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

// ListArticlesAboveThreshold implements ArticleReader for the scheduled
// sweeper (spec §4.4): newly-ingested articles whose threat_hunting_score is
// at or above the auto-trigger threshold and with no prior successful execution
// at sinceConfigVersion.
func (s *PostgresStore) ListArticlesAboveThreshold(ctx context.Context, threshold float64, sinceConfigVersion int) ([]*models.Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.source_id, a.canonical_url, a.title, a.content, a.filtered_content,
		       a.content_hash, a.published_at, a.threat_hunting_score, a.ml_hunt_score, a.metadata
		FROM articles a
		WHERE a.threat_hunting_score >= $1
		  AND NOT EXISTS (
		        SELECT 1 FROM executions e
		        WHERE e.article_id = a.id
		          AND e.config_version = $2
		          AND e.status = 'completed'
		      )
		ORDER BY a.published_at ASC`, threshold, sinceConfigVersion)
	if err != nil {
		return nil, fmt.Errorf("catalog: list articles above threshold: %w", err)
	}
	defer rows.Close()

	var out []*models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, article)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var a models.Article
	var filteredContent, contentHash *string
	var metadataJSON []byte
	err := row.Scan(&a.ID, &a.SourceID, &a.CanonicalURL, &a.Title, &a.Content, &filteredContent,
		&contentHash, &a.PublishedAt, &a.ThreatHuntingScore, &a.MLHuntScore, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("catalog: scan article: %w", err)
	}
	if filteredContent != nil {
		a.FilteredContent = *filteredContent
	}
	if contentHash != nil {
		a.ContentHash = *contentHash
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal article metadata: %w", err)
		}
	}
	return &a, nil
}

// CreateQueuedExecution implements ExecutionStore. It enforces the
// at-most-one-non-terminal-execution invariant (§3, §8 property 1) inside a
// single transaction: check-then-insert under a transaction-scoped advisory
// lock keyed on the article id,
// mirroring the teacher's claimNextSession transaction discipline.
func (s *PostgresStore) CreateQueuedExecution(ctx context.Context, articleID string, configVersion int) (*models.Execution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Advisory-style serialization: lock on the article id within the tx so
	// two concurrent triggers can't both pass the existence check (spec §8
	// S4: duplicate-trigger property test).
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, articleID); err != nil {
		return nil, fmt.Errorf("catalog: advisory lock: %w", err)
	}

	existing, err := queryActiveExecution(ctx, tx, articleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrAlreadyActive
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, article_id, status, config_version, last_heartbeat_at, created_at)
		VALUES ($1, $2, 'queued', $3, $4, $4)`, id, articleID, configVersion, now)
	if err != nil {
		return nil, fmt.Errorf("catalog: insert execution: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}

	return &models.Execution{
		ID:              id,
		ArticleID:       articleID,
		Status:          models.ExecutionStatusQueued,
		ConfigVersion:   configVersion,
		LastHeartbeatAt: now,
	}, nil
}

// queryActiveExecution returns the non-terminal execution for an article, if any.
func queryActiveExecution(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, articleID string) (*models.Execution, error) {
	row := q.QueryRow(ctx, `
		SELECT id, article_id, status, termination_reason, config_version,
		       started_at, finished_at, last_heartbeat_at, discrete_huntables_count,
		       extraction_result, sigma_rules, similarity_results, error_stage, error_kind, error_detail
		FROM executions
		WHERE article_id = $1 AND status IN ('queued', 'running')
		ORDER BY created_at DESC LIMIT 1`, articleID)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, ErrExecutionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return exec, nil
}

// ActiveExecutionForArticle implements ExecutionStore.
func (s *PostgresStore) ActiveExecutionForArticle(ctx context.Context, articleID string) (*models.Execution, error) {
	return queryActiveExecution(ctx, s.pool, articleID)
}

// ClaimNext implements the engine's at-most-one-concurrent claiming
// discipline (§4.1 "Claiming"): a conditional UPDATE is the only mutual
// exclusion primitive, exactly mirroring the teacher's claimNextSession.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*models.Execution, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id FROM executions
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("catalog: select next queued: %w", err)
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE executions SET status = 'running', started_at = $2, last_heartbeat_at = $2
		WHERE id = $1 AND status = 'queued'`, id, now)
	if err != nil {
		return nil, false, fmt.Errorf("catalog: claim update: %w", err)
	}
	if tag.RowsAffected() != 1 {
		// Lost the race to another worker/redelivery; not an error.
		return nil, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("catalog: commit claim: %w", err)
	}

	return s.GetExecution(ctx, id)
}

// ClaimByID implements ExecutionStore for queue messages that name a
// specific execution. Tolerates duplicate delivery: a second claim attempt
// on an already-running execution returns ErrNotClaimed, and the worker
// drops the message as a duplicate (spec §4.1 "Claiming").
func (s *PostgresStore) ClaimByID(ctx context.Context, executionID string) (*models.Execution, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET status = 'running', started_at = $2, last_heartbeat_at = $2
		WHERE id = $1 AND status = 'queued'`, executionID, now)
	if err != nil {
		return nil, fmt.Errorf("catalog: claim by id: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrNotClaimed
	}
	return s.GetExecution(ctx, executionID)
}

// GetExecution implements ExecutionStore.
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, article_id, status, termination_reason, config_version,
		       started_at, finished_at, last_heartbeat_at, discrete_huntables_count,
		       extraction_result, sigma_rules, similarity_results, error_stage, error_kind, error_detail
		FROM executions WHERE id = $1`, id)
	return scanExecution(row)
}

// ListExecutions implements ExecutionStore.
func (s *PostgresStore) ListExecutions(ctx context.Context, articleID string) ([]*models.Execution, error) {
	var rows pgx.Rows
	var err error
	if articleID == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, article_id, status, termination_reason, config_version,
			       started_at, finished_at, last_heartbeat_at, discrete_huntables_count,
			       extraction_result, sigma_rules, similarity_results, error_stage, error_kind, error_detail
			FROM executions ORDER BY created_at DESC LIMIT 100`)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, article_id, status, termination_reason, config_version,
			       started_at, finished_at, last_heartbeat_at, discrete_huntables_count,
			       extraction_result, sigma_rules, similarity_results, error_stage, error_kind, error_detail
			FROM executions WHERE article_id = $1 ORDER BY created_at DESC`, articleID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list executions: %w", err)
	}
	defer rows.Close()

	var out []*models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var e models.Execution
	var terminationReason, errStage, errKind, errDetail *string
	var extractionJSON, sigmaJSON, similarityJSON []byte
	err := row.Scan(&e.ID, &e.ArticleID, &e.Status, &terminationReason, &e.ConfigVersion,
		&e.StartedAt, &e.FinishedAt, &e.LastHeartbeatAt, &e.DiscreteHuntablesCount,
		&extractionJSON, &sigmaJSON, &similarityJSON, &errStage, &errKind, &errDetail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("catalog: scan execution: %w", err)
	}
	if terminationReason != nil {
		e.TerminationReason = models.TerminationReason(*terminationReason)
	}
	if errStage != nil {
		e.Error = &models.ExecutionError{}
		e.Error.Stage = *errStage
		if errKind != nil {
			e.Error.Kind = *errKind
		}
		if errDetail != nil {
			e.Error.Detail = *errDetail
		}
	}
	if len(extractionJSON) > 0 {
		var out models.ExtractOutput
		if err := json.Unmarshal(extractionJSON, &out); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal extraction_result: %w", err)
		}
		e.ExtractionResult = &out
	}
	if len(sigmaJSON) > 0 {
		if err := json.Unmarshal(sigmaJSON, &e.SigmaRules); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal sigma_rules: %w", err)
		}
	}
	if len(similarityJSON) > 0 {
		if err := json.Unmarshal(similarityJSON, &e.SimilarityResults); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal similarity_results: %w", err)
		}
	}
	return &e, nil
}

// AppendStageResult implements ExecutionStore: append-only per §3.
func (s *PostgresStore) AppendStageResult(ctx context.Context, r *models.StageResult) error {
	outputJSON, err := marshalStageOutput(r.Output)
	if err != nil {
		return err
	}
	var telemetryJSON []byte
	if r.LLMTelemetry != nil {
		telemetryJSON, err = json.Marshal(r.LLMTelemetry)
		if err != nil {
			return fmt.Errorf("catalog: marshal llm_telemetry: %w", err)
		}
	}
	var errStage, errKind, errDetail *string
	if r.Error != nil {
		errStage, errKind, errDetail = &r.Error.Stage, &r.Error.Kind, &r.Error.Detail
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stage_results
			(execution_id, stage_name, stage_index, attempt, status, started_at, finished_at,
			 input_fingerprint, nonce, output, llm_telemetry, error_stage, error_kind, error_detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ExecutionID, r.StageName, r.StageIndex, r.Attempt, r.Status, r.StartedAt, r.FinishedAt,
		r.InputFingerprint, r.Nonce, outputJSON, telemetryJSON, errStage, errKind, errDetail)
	if err != nil {
		return fmt.Errorf("catalog: append stage result: %w", err)
	}
	return nil
}

// ListStageResults implements ExecutionStore, ordered by (stage_index,
// attempt) per §5 "Ordering guarantees".
func (s *PostgresStore) ListStageResults(ctx context.Context, executionID string) ([]*models.StageResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, stage_name, stage_index, attempt, status, started_at, finished_at,
		       input_fingerprint, nonce, output, llm_telemetry, error_stage, error_kind, error_detail
		FROM stage_results WHERE execution_id = $1
		ORDER BY stage_index ASC, attempt ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list stage results: %w", err)
	}
	defer rows.Close()

	var out []*models.StageResult
	for rows.Next() {
		var r models.StageResult
		var outputJSON, telemetryJSON []byte
		var errStage, errKind, errDetail *string
		if err := rows.Scan(&r.ExecutionID, &r.StageName, &r.StageIndex, &r.Attempt, &r.Status,
			&r.StartedAt, &r.FinishedAt, &r.InputFingerprint, &r.Nonce, &outputJSON, &telemetryJSON,
			&errStage, &errKind, &errDetail); err != nil {
			return nil, fmt.Errorf("catalog: scan stage result: %w", err)
		}
		if errStage != nil {
			r.Error = &models.ExecutionError{Stage: *errStage}
			if errKind != nil {
				r.Error.Kind = *errKind
			}
			if errDetail != nil {
				r.Error.Detail = *errDetail
			}
		}
		if len(telemetryJSON) > 0 {
			var t models.LLMTelemetry
			if err := json.Unmarshal(telemetryJSON, &t); err != nil {
				return nil, fmt.Errorf("catalog: unmarshal llm_telemetry: %w", err)
			}
			r.LLMTelemetry = &t
		}
		if len(outputJSON) > 0 {
			output, err := unmarshalStageOutput(r.StageName, outputJSON)
			if err != nil {
				return nil, err
			}
			r.Output = output
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// unmarshalStageOutput re-types a stage's JSON output column back into its
// concrete models.StageOutput variant based on the stage name, restoring the
// tagged-variant typing the JSON column can't carry on its own.
func unmarshalStageOutput(stage models.StageName, raw []byte) (models.StageOutput, error) {
	var err error
	switch stage {
	case models.StageOSDetect:
		var o models.OSDetectOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	case models.StageJunkFilter:
		var o models.JunkFilterOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	case models.StageRank:
		var o models.RankOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	case models.StageExtractSupervisor:
		var o models.ExtractOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	case models.StageSigmaGen:
		var o models.SigmaOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	case models.StageSimilarityMatch:
		var o models.SimilarityOutput
		err = json.Unmarshal(raw, &o)
		return o, err
	default:
		return nil, fmt.Errorf("catalog: unknown stage name %q", stage)
	}
}

// Heartbeat implements ExecutionStore.
func (s *PostgresStore) Heartbeat(ctx context.Context, executionID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE executions SET last_heartbeat_at = $2 WHERE id = $1`,
		executionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: heartbeat: %w", err)
	}
	return nil
}

// TransitionTerminal implements ExecutionStore.
func (s *PostgresStore) TransitionTerminal(ctx context.Context, executionID string, exec *models.Execution) error {
	var extractionJSON []byte
	var err error
	if exec.ExtractionResult != nil {
		extractionJSON, err = json.Marshal(exec.ExtractionResult)
		if err != nil {
			return fmt.Errorf("catalog: marshal extraction_result: %w", err)
		}
	}
	sigmaJSON, err := json.Marshal(exec.SigmaRules)
	if err != nil {
		return fmt.Errorf("catalog: marshal sigma_rules: %w", err)
	}
	similarityJSON, err := json.Marshal(exec.SimilarityResults)
	if err != nil {
		return fmt.Errorf("catalog: marshal similarity_results: %w", err)
	}
	var terminationReason *string
	if exec.TerminationReason != "" {
		s := string(exec.TerminationReason)
		terminationReason = &s
	}
	var errStage, errKind, errDetail *string
	if exec.Error != nil {
		errStage, errKind, errDetail = &exec.Error.Stage, &exec.Error.Kind, &exec.Error.Detail
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET
			status = $2, termination_reason = $3, finished_at = $4,
			discrete_huntables_count = $5, extraction_result = $6, sigma_rules = $7,
			similarity_results = $8, error_stage = $9, error_kind = $10, error_detail = $11
		WHERE id = $1 AND status = 'running'`,
		executionID, exec.Status, terminationReason, now,
		exec.DiscreteHuntablesCount, extractionJSON, sigmaJSON, similarityJSON,
		errStage, errKind, errDetail)
	if err != nil {
		return fmt.Errorf("catalog: transition terminal: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotClaimed
	}
	return nil
}

// ReclaimOrphans implements ExecutionStore's supplemented orphan-detection
// feature (DESIGN.md), grounded on the teacher's orphan sweep.
func (s *PostgresStore) ReclaimOrphans(ctx context.Context, olderThanSeconds int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = 'queued', started_at = NULL
		WHERE status = 'running'
		  AND last_heartbeat_at < now() - ($1 || ' seconds')::interval`, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("catalog: reclaim orphans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RequestCancel implements ExecutionStore.
func (s *PostgresStore) RequestCancel(ctx context.Context, executionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET cancel_requested = true
		WHERE id = $1 AND status IN ('queued', 'running')`, executionID)
	if err != nil {
		return fmt.Errorf("catalog: request cancel: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrExecutionNotFound
	}
	return nil
}

// CancelRequested implements ExecutionStore.
func (s *PostgresStore) CancelRequested(ctx context.Context, executionID string) (bool, error) {
	var cancelled bool
	err := s.pool.QueryRow(ctx, `SELECT cancel_requested FROM executions WHERE id = $1`, executionID).Scan(&cancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrExecutionNotFound
		}
		return false, fmt.Errorf("catalog: cancel requested: %w", err)
	}
	return cancelled, nil
}

func marshalStageOutput(out any) ([]byte, error) {
	if out == nil {
		return nil, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal stage output: %w", err)
	}
	return b, nil
}
