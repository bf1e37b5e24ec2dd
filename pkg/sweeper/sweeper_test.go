package sweeper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

type fakeArticleReader struct {
	articles []*models.Article
}

func (f *fakeArticleReader) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	return nil, nil
}

func (f *fakeArticleReader) ListArticlesAboveThreshold(ctx context.Context, threshold float64, sinceConfigVersion int) ([]*models.Article, error) {
	return f.articles, nil
}

type fakeExecutionLister struct {
	byArticle map[string][]*models.Execution
}

func (f *fakeExecutionLister) ListExecutions(ctx context.Context, articleID string) ([]*models.Execution, error) {
	return f.byArticle[articleID], nil
}

type fakeTriggerer struct {
	triggered []string
}

func (f *fakeTriggerer) Trigger(ctx context.Context, articleID string) (*workflow.TriggerResult, error) {
	f.triggered = append(f.triggered, articleID)
	return &workflow.TriggerResult{ExecutionID: "exec-" + articleID, Accepted: true}, nil
}

type fakeConfigProvider struct {
	cfg models.WorkflowConfig
}

func (f fakeConfigProvider) Current() models.WorkflowConfig { return f.cfg }

func TestSweepTriggersQualifyingArticlesWithoutPriorSuccess(t *testing.T) {
	articles := &fakeArticleReader{articles: []*models.Article{{ID: "a1"}, {ID: "a2"}}}
	executions := &fakeExecutionLister{byArticle: map[string][]*models.Execution{}}
	triggerer := &fakeTriggerer{}
	cfg := fakeConfigProvider{cfg: models.WorkflowConfig{Version: 1, AutoTriggerThreshold: 7}}

	s := New(articles, executions, triggerer, cfg, nil)
	s.sweep(context.Background())

	assert.ElementsMatch(t, []string{"a1", "a2"}, triggerer.triggered)
}

// TestSweepSkipsArticleWithSuccessfulExecutionAtCurrentVersion covers the
// "no prior successful execution at the current config_version" guard: a
// completed execution for the active version must suppress re-triggering.
func TestSweepSkipsArticleWithSuccessfulExecutionAtCurrentVersion(t *testing.T) {
	articles := &fakeArticleReader{articles: []*models.Article{{ID: "a1"}}}
	executions := &fakeExecutionLister{byArticle: map[string][]*models.Execution{
		"a1": {{ArticleID: "a1", ConfigVersion: 1, Status: models.ExecutionStatusCompleted}},
	}}
	triggerer := &fakeTriggerer{}
	cfg := fakeConfigProvider{cfg: models.WorkflowConfig{Version: 1, AutoTriggerThreshold: 7}}

	s := New(articles, executions, triggerer, cfg, nil)
	s.sweep(context.Background())

	assert.Empty(t, triggerer.triggered)
}

// TestSweepRetriggersAfterConfigVersionChanges covers the version-scoped
// half of the same guard: a completed execution from an older config
// version must not suppress a sweep under a newer version.
func TestSweepRetriggersAfterConfigVersionChanges(t *testing.T) {
	articles := &fakeArticleReader{articles: []*models.Article{{ID: "a1"}}}
	executions := &fakeExecutionLister{byArticle: map[string][]*models.Execution{
		"a1": {{ArticleID: "a1", ConfigVersion: 1, Status: models.ExecutionStatusCompleted}},
	}}
	triggerer := &fakeTriggerer{}
	cfg := fakeConfigProvider{cfg: models.WorkflowConfig{Version: 2, AutoTriggerThreshold: 7}}

	s := New(articles, executions, triggerer, cfg, nil)
	s.sweep(context.Background())

	assert.Equal(t, []string{"a1"}, triggerer.triggered)
}

func TestSweepRetriggersAfterFailedPriorExecution(t *testing.T) {
	articles := &fakeArticleReader{articles: []*models.Article{{ID: "a1"}}}
	executions := &fakeExecutionLister{byArticle: map[string][]*models.Execution{
		"a1": {{ArticleID: "a1", ConfigVersion: 1, Status: models.ExecutionStatusFailed}},
	}}
	triggerer := &fakeTriggerer{}
	cfg := fakeConfigProvider{cfg: models.WorkflowConfig{Version: 1, AutoTriggerThreshold: 7}}

	s := New(articles, executions, triggerer, cfg, nil)
	s.sweep(context.Background())

	require.Len(t, triggerer.triggered, 1, "a failed (non-successful) prior execution must not suppress re-triggering")
}
