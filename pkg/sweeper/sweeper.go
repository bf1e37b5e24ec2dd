// Package sweeper implements the scheduled sweeper half of the Trigger
// Surface (§4.4): periodically enqueue triggers for newly-ingested articles
// whose threat_hunting_score clears the auto-trigger threshold and have no
// prior successful execution at the current config version.
//
// Grounded on the teacher's cron-driven maintenance tasks; robfig/cron/v3 is
// adopted here (present nowhere in the teacher's own go.mod but a real
// scheduling library the wider example pack reaches for) rather than a
// hand-rolled ticker loop, since the sweeper needs a cron expression, not a
// fixed interval, for operators to configure.
package sweeper

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ctihunt/workflowengine/pkg/catalog"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// Triggerer is the narrow Engine surface the sweeper drives.
type Triggerer interface {
	Trigger(ctx context.Context, articleID string) (*workflow.TriggerResult, error)
}

// ConfigProvider resolves the engine's currently active config, used to read
// the auto_trigger_threshold and the config_version used in the "no prior
// successful execution at the current config_version" check.
type ConfigProvider interface {
	Current() models.WorkflowConfig
}

// Sweeper periodically scans for qualifying articles and triggers them.
type Sweeper struct {
	articles  catalog.ArticleReader
	executor  ExecutionLister
	triggerer Triggerer
	config    ConfigProvider
	logger    *slog.Logger
	cron      *cron.Cron
}

// ExecutionLister is the narrow catalog surface used to check "no prior
// successful execution at the current config_version".
type ExecutionLister interface {
	ListExecutions(ctx context.Context, articleID string) ([]*models.Execution, error)
}

// New builds a Sweeper; the cron schedule is passed to Start.
func New(articles catalog.ArticleReader, executor ExecutionLister, triggerer Triggerer, config ConfigProvider, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{articles: articles, executor: executor, triggerer: triggerer, config: config, logger: logger, cron: cron.New()}
}

// Start schedules the sweep on schedule, a standard 5-field cron expression
// (e.g. "*/5 * * * *" to sweep every five minutes), and begins running it in
// the background.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() { s.sweep(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep(ctx context.Context) {
	cfg := s.config.Current()
	articles, err := s.articles.ListArticlesAboveThreshold(ctx, cfg.AutoTriggerThreshold, cfg.Version)
	if err != nil {
		s.logger.Error("sweeper: list articles failed", "err", err)
		return
	}

	for _, article := range articles {
		if s.hasSuccessfulExecution(ctx, article.ID, cfg.Version) {
			continue
		}
		result, err := s.triggerer.Trigger(ctx, article.ID)
		if err != nil {
			s.logger.Error("sweeper: trigger failed", "article_id", article.ID, "err", err)
			continue
		}
		if result.Accepted {
			s.logger.Info("sweeper: triggered execution", "article_id", article.ID, "execution_id", result.ExecutionID)
		}
	}
}

func (s *Sweeper) hasSuccessfulExecution(ctx context.Context, articleID string, configVersion int) bool {
	executions, err := s.executor.ListExecutions(ctx, articleID)
	if err != nil {
		s.logger.Warn("sweeper: list executions failed", "article_id", articleID, "err", err)
		return false
	}
	for _, e := range executions {
		if e.ConfigVersion == configVersion && e.Status == models.ExecutionStatusCompleted {
			return true
		}
	}
	return false
}
