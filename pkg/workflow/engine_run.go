package workflow

import (
	"context"
	"time"

	"github.com/ctihunt/workflowengine/pkg/metrics"
	"github.com/ctihunt/workflowengine/pkg/models"
)

// stageTerminate signals that a stage itself requested early termination
// (§4.1 "Early termination rules"), as opposed to exhausting retries.
type stageTerminate struct {
	Reason models.TerminationReason
}

// runClaimed advances a just-claimed (status=running) Execution through the
// full stage DAG to a terminal state (§4.1 state machine). It is the engine's
// single sequential driver; sub-agent parallelism inside ExtractSupervisor is
// the only intra-execution concurrency (§5).
func (e *Engine) runClaimed(ctx context.Context, exec *models.Execution) error {
	e.notifyExecution(ctx, exec)

	article, err := e.store.GetArticle(ctx, exec.ArticleID)
	if err != nil {
		return e.failExecution(ctx, exec, "", KindUnexpected, err)
	}
	cfg, err := e.config.Resolve(exec.ConfigVersion)
	if err != nil {
		return e.failExecution(ctx, exec, "", KindConfigError, err)
	}

	deadlineAt := nowFunc().Add(e.deadline)
	if exec.StartedAt != nil {
		deadlineAt = exec.StartedAt.Add(e.deadline)
	}
	runCtx, cancel := context.WithDeadline(ctx, deadlineAt)
	defer cancel()

	prior := map[models.StageName]models.StageOutput{}

	// OSDetect
	osOutput, term, err := e.runStage(runCtx, exec, models.StageOSDetect, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageOSDetect, err)
	}
	osDetect, _ := osOutput.(models.OSDetectOutput)
	prior[models.StageOSDetect] = osOutput
	if osDetect.Platform == models.OSPlatformLinux || osDetect.Platform == models.OSPlatformMacOS {
		return e.terminateEarly(ctx, exec, models.ReasonNonWindowsOS)
	}
	if osDetect.Platform == models.OSPlatformUnknown && cfg.OSDetectUnknownPolicy == models.OSDetectUnknownTerminate {
		return e.terminateEarly(ctx, exec, models.ReasonNonWindowsOS)
	}
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}

	// JunkFilter
	jfOutput, term, err := e.runStage(runCtx, exec, models.StageJunkFilter, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageJunkFilter, err)
	}
	junkFilter, _ := jfOutput.(models.JunkFilterOutput)
	prior[models.StageJunkFilter] = jfOutput
	if junkFilter.Junk {
		return e.terminateEarly(ctx, exec, models.ReasonJunkFiltered)
	}
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}
	article.FilteredContent = junkFilter.FilteredContent

	// Rank
	rankOutput, term, err := e.runStage(runCtx, exec, models.StageRank, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageRank, err)
	}
	rank, _ := rankOutput.(models.RankOutput)
	prior[models.StageRank] = rankOutput
	if rank.Score < cfg.Thresholds.Ranking {
		return e.terminateEarly(ctx, exec, models.ReasonBelowRankThresh)
	}
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}

	// ExtractSupervisor
	extractOutput, term, err := e.runStage(runCtx, exec, models.StageExtractSupervisor, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageExtractSupervisor, err)
	}
	extract, _ := extractOutput.(models.ExtractOutput)
	prior[models.StageExtractSupervisor] = extractOutput
	exec.ExtractionResult = &extract
	exec.DiscreteHuntablesCount = extract.DiscreteHuntablesCount
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}

	// §4.1 rule 4: no huntables and fallback disabled -> skip Sigma+Similarity,
	// complete with empty outputs.
	if extract.DiscreteHuntablesCount == 0 && !cfg.SigmaFallbackEnabled {
		return e.complete(ctx, exec)
	}
	// §9 open question: fallback enabled but filtered_content also empty ->
	// skip Sigma cleanly with the same empty-completed outcome.
	if extract.DiscreteHuntablesCount == 0 && cfg.SigmaFallbackEnabled && article.FilteredContent == "" {
		return e.complete(ctx, exec)
	}

	// SigmaGen
	sigmaOutput, term, err := e.runStage(runCtx, exec, models.StageSigmaGen, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageSigmaGen, err)
	}
	sigma, _ := sigmaOutput.(models.SigmaOutput)
	prior[models.StageSigmaGen] = sigmaOutput
	exec.SigmaRules = sigma.Rules
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}

	if len(sigma.Rules) == 0 {
		return e.complete(ctx, exec)
	}

	// SimilarityMatch
	simOutput, term, err := e.runStage(runCtx, exec, models.StageSimilarityMatch, StageInput{Article: article, Config: cfg, Prior: prior})
	if err != nil {
		return e.handleStageError(ctx, exec, models.StageSimilarityMatch, err)
	}
	similarity, _ := simOutput.(models.SimilarityOutput)
	prior[models.StageSimilarityMatch] = simOutput
	exec.SimilarityResults = similarity.Matches
	if term != nil {
		return e.terminateEarly(ctx, exec, term.Reason)
	}

	return e.complete(ctx, exec)
}

// runStage runs one stage's full attempt loop (retries, heartbeat, per-attempt
// persistence) and returns its typed output plus an optional stage-requested
// early termination.
func (e *Engine) runStage(ctx context.Context, exec *models.Execution, name models.StageName, in StageInput) (models.StageOutput, *stageTerminate, error) {
	if err := e.store.Heartbeat(ctx, exec.ID); err != nil {
		e.logger.Warn("heartbeat failed", "execution_id", exec.ID, "err", err)
	}
	if cancelled, err := e.store.CancelRequested(ctx, exec.ID); err == nil && cancelled {
		return nil, nil, ErrCancelled
	}

	executor, ok := e.executors[name]
	if !ok {
		return nil, nil, &ConfigError{Detail: "no executor registered for stage " + string(name)}
	}

	stageIdx := StageIndex(name)
	article := in.Article
	backoffSeq := newStageBackOff()

	var lastErr error
	for attempt := 1; attempt <= MaxStageAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, e.recordTimeout(ctx, exec, name, stageIdx, attempt)
		}

		startedAt := nowFunc()
		outcome, err := executor.Execute(ctx, in)
		finishedAt := nowFunc()
		fp := inputFingerprint(article, in.Prior)
		nonce := newNonce()

		if err != nil {
			kind := Classify(err)
			status := models.StageStatusFailed
			if kind == KindCancelled {
				status = models.StageStatusCancelled
			}
			e.appendResult(ctx, exec.ID, name, stageIdx, attempt, status, startedAt, finishedAt, fp, nonce, nil, nil,
				&models.ExecutionError{Stage: string(name), Kind: string(kind), Detail: err.Error()})

			lastErr = err
			if !Retryable(kind) || attempt == MaxStageAttempts {
				return nil, nil, err
			}
			in.PriorError = err.Error()
			if sleepErr := sleepBackoff(ctx, backoffSeq); sleepErr != nil {
				return nil, nil, sleepErr
			}
			continue
		}

		e.appendResult(ctx, exec.ID, name, stageIdx, attempt, models.StageStatusSucceeded, startedAt, finishedAt, fp, nonce,
			outcome.Output, outcome.Telemetry, nil)

		if outcome.Terminate {
			return outcome.Output, &stageTerminate{Reason: outcome.Reason}, nil
		}
		return outcome.Output, nil, nil
	}
	return nil, nil, lastErr
}

func (e *Engine) appendResult(ctx context.Context, executionID string, name models.StageName, stageIdx, attempt int,
	status models.StageStatus, startedAt, finishedAt time.Time, fingerprint, nonce string,
	output models.StageOutput, telemetry *models.LLMTelemetry, stageErr *models.ExecutionError) {

	result := &models.StageResult{
		ExecutionID:      executionID,
		StageName:        name,
		StageIndex:       stageIdx,
		Attempt:          attempt,
		Status:           status,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		InputFingerprint: fingerprint,
		Nonce:            nonce,
		Output:           output,
		LLMTelemetry:     telemetry,
		Error:            stageErr,
	}
	if err := e.store.AppendStageResult(ctx, result); err != nil {
		e.logger.Error("append stage result failed", "execution_id", executionID, "stage", name, "err", err)
	}
	e.notifyStage(ctx, executionID, name, attempt, status)
	metrics.RecordStageAttempt(string(name), string(status), finishedAt.Sub(startedAt).Seconds())
	if telemetry != nil {
		metrics.RecordLLMUsage(string(name), telemetry.Provider, telemetry.InputTokens, telemetry.OutputTokens)
	}
}

func sleepBackoff(ctx context.Context, b interface{ NextBackOff() time.Duration }) error {
	d := b.NextBackOff()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) recordTimeout(ctx context.Context, exec *models.Execution, name models.StageName, stageIdx, attempt int) error {
	now := nowFunc()
	e.appendResult(context.Background(), exec.ID, name, stageIdx, attempt, models.StageStatusTimedOut, now, now, "", newNonce(), nil, nil,
		&models.ExecutionError{Stage: string(name), Kind: string(KindCancelled), Detail: "execution deadline exceeded"})
	exec.Error = &models.ExecutionError{Stage: string(name), Kind: string(KindCancelled), Detail: "deadline exceeded"}
	return e.transitionTerminal(context.Background(), exec, models.ExecutionStatusFailed, models.ReasonDeadlineExceeded)
}

func (e *Engine) handleStageError(ctx context.Context, exec *models.Execution, name models.StageName, err error) error {
	kind := Classify(err)
	if kind == KindCancelled {
		return e.terminateEarly(ctx, exec, models.ReasonCancelled)
	}
	return e.failExecution(ctx, exec, name, kind, err)
}

func (e *Engine) failExecution(ctx context.Context, exec *models.Execution, stage models.StageName, kind ErrorKind, err error) error {
	exec.Error = &models.ExecutionError{Stage: string(stage), Kind: string(kind), Detail: err.Error()}
	return e.transitionTerminal(ctx, exec, models.ExecutionStatusFailed, models.ReasonStageFailed)
}

func (e *Engine) terminateEarly(ctx context.Context, exec *models.Execution, reason models.TerminationReason) error {
	return e.transitionTerminal(ctx, exec, models.ExecutionStatusTerminatedEarly, reason)
}

func (e *Engine) complete(ctx context.Context, exec *models.Execution) error {
	return e.transitionTerminal(ctx, exec, models.ExecutionStatusCompleted, "")
}

func (e *Engine) transitionTerminal(ctx context.Context, exec *models.Execution, status models.ExecutionStatus, reason models.TerminationReason) error {
	exec.Status = status
	exec.TerminationReason = reason
	finished := nowFunc()
	exec.FinishedAt = &finished
	if err := e.store.TransitionTerminal(ctx, exec.ID, exec); err != nil {
		return err
	}
	e.notifyExecution(ctx, exec)
	metrics.RecordExecutionTerminal(string(status), string(reason))
	metrics.RecordDiscreteHuntables(exec.DiscreteHuntablesCount)
	return nil
}
