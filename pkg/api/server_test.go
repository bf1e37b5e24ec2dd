package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctihunt/workflowengine/pkg/catalog"
	"github.com/ctihunt/workflowengine/pkg/models"
	"github.com/ctihunt/workflowengine/pkg/queue"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// fakeStore is a minimal in-memory catalog.Store sufficient to drive the
// §6 HTTP surface end-to-end without a database.
type fakeStore struct {
	mu         sync.Mutex
	articles   map[string]*models.Article
	executions map[string]*models.Execution
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: map[string]*models.Article{}, executions: map[string]*models.Execution{}}
}

func (f *fakeStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, catalog.ErrArticleNotFound
	}
	return a, nil
}

func (f *fakeStore) ListArticlesAboveThreshold(ctx context.Context, threshold float64, sinceConfigVersion int) ([]*models.Article, error) {
	return nil, nil
}

func (f *fakeStore) CreateQueuedExecution(ctx context.Context, articleID string, configVersion int) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.executions {
		if e.ArticleID == articleID && !e.Status.IsTerminal() {
			return e, catalog.ErrAlreadyActive
		}
	}
	exec := &models.Execution{ID: "exec-1", ArticleID: articleID, Status: models.ExecutionStatusQueued, ConfigVersion: configVersion}
	f.executions[exec.ID] = exec
	return exec, nil
}

func (f *fakeStore) ActiveExecutionForArticle(ctx context.Context, articleID string) (*models.Execution, error) {
	return nil, catalog.ErrExecutionNotFound
}

func (f *fakeStore) ClaimNext(ctx context.Context) (*models.Execution, bool, error) { return nil, false, nil }
func (f *fakeStore) ClaimByID(ctx context.Context, executionID string) (*models.Execution, error) {
	return nil, catalog.ErrNotClaimed
}

func (f *fakeStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return nil, catalog.ErrExecutionNotFound
	}
	return e, nil
}

func (f *fakeStore) ListExecutions(ctx context.Context, articleID string) ([]*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Execution
	for _, e := range f.executions {
		if articleID == "" || e.ArticleID == articleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendStageResult(ctx context.Context, result *models.StageResult) error { return nil }
func (f *fakeStore) ListStageResults(ctx context.Context, executionID string) ([]*models.StageResult, error) {
	return nil, nil
}
func (f *fakeStore) Heartbeat(ctx context.Context, executionID string) error { return nil }

func (f *fakeStore) TransitionTerminal(ctx context.Context, executionID string, exec *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[executionID] = exec
	return nil
}

func (f *fakeStore) ReclaimOrphans(ctx context.Context, olderThanSeconds int) (int, error) { return 0, nil }

func (f *fakeStore) RequestCancel(ctx context.Context, executionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if ok {
		_ = e // cancel flag tracked separately in this fake; RequestCancel's
		// effect is observed through Cancel's precondition check only.
	}
	return nil
}

func (f *fakeStore) CancelRequested(ctx context.Context, executionID string) (bool, error) {
	return false, nil
}

type fakeBroker struct{}

func (fakeBroker) Publish(ctx context.Context, queueName string, msg queue.TriggerMessage) error {
	return nil
}
func (fakeBroker) Consume(ctx context.Context, queueName string) (*queue.TriggerMessage, bool, error) {
	return nil, false, nil
}

type fakeConfigProvider struct{ cfg models.WorkflowConfig }

func (f fakeConfigProvider) Current() models.WorkflowConfig { return f.cfg }
func (f fakeConfigProvider) Resolve(version int) (models.WorkflowConfig, error) {
	return f.cfg, nil
}

func testServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cfg := fakeConfigProvider{cfg: models.WorkflowConfig{Version: 1}}
	engine := workflow.New(store, fakeBroker{}, nil, cfg, nil, time.Minute)
	return NewServer(engine), store
}

func TestTriggerHandlerAcceptsNewArticle(t *testing.T) {
	server, store := testServer(t)
	store.articles["a1"] = &models.Article{ID: "a1"}

	req := httptest.NewRequest(http.MethodPost, "/workflow/articles/a1/trigger", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
}

func TestTriggerHandlerUnknownArticleReturns404(t *testing.T) {
	server, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflow/articles/missing/trigger", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExecutionHandlerReturnsExecution(t *testing.T) {
	server, store := testServer(t)
	store.executions["e1"] = &models.Execution{ID: "e1", ArticleID: "a1", Status: models.ExecutionStatusCompleted}

	req := httptest.NewRequest(http.MethodGet, "/workflow/executions/e1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, resp.Status)
}

func TestGetExecutionHandlerMissingReturns404(t *testing.T) {
	server, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workflow/executions/missing", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelHandlerRejectsTerminalExecution(t *testing.T) {
	server, store := testServer(t)
	store.executions["e1"] = &models.Execution{ID: "e1", ArticleID: "a1", Status: models.ExecutionStatusCompleted}

	req := httptest.NewRequest(http.MethodPost, "/workflow/executions/e1/cancel", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthzReportsHealthyWithoutPool(t *testing.T) {
	server, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workflow/healthz", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestListExecutionsFiltersByArticle(t *testing.T) {
	server, store := testServer(t)
	store.executions["e1"] = &models.Execution{ID: "e1", ArticleID: "a1", Status: models.ExecutionStatusCompleted}
	store.executions["e2"] = &models.Execution{ID: "e2", ArticleID: "a2", Status: models.ExecutionStatusCompleted}

	req := httptest.NewRequest(http.MethodGet, "/workflow/executions?article_id=a1", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListExecutionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, "e1", resp.Executions[0].ID)
}
