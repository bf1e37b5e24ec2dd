package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ctihunt/workflowengine/pkg/catalog"
)

// triggerHandler handles POST /workflow/articles/:id/trigger (§6).
func (s *Server) triggerHandler(c *gin.Context) {
	articleID := c.Param("id")

	result, err := s.engine.Trigger(c.Request.Context(), articleID)
	if err != nil {
		if errors.Is(err, catalog.ErrArticleNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeServiceError(c, err)
		return
	}

	resp := TriggerResponse{ExecutionID: result.ExecutionID, Accepted: result.Accepted, Reason: result.Reason}
	if !result.Accepted {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getExecutionHandler handles GET /workflow/executions/:id (§6).
func (s *Server) getExecutionHandler(c *gin.Context) {
	executionID := c.Param("id")

	exec, results, err := s.engine.Get(c.Request.Context(), executionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toExecutionResponse(exec, results))
}

// listExecutionsHandler handles GET /workflow/executions?article_id=X (§6).
func (s *Server) listExecutionsHandler(c *gin.Context) {
	articleID := c.Query("article_id")

	executions, err := s.engine.List(c.Request.Context(), articleID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// List returns execution summaries only; stage_results detail is fetched
	// per-execution via GET /workflow/executions/:id (§6).
	out := make([]ExecutionResponse, 0, len(executions))
	for _, exec := range executions {
		out = append(out, toExecutionResponse(exec, nil))
	}
	c.JSON(http.StatusOK, ListExecutionsResponse{Executions: out})
}

// cancelHandler handles POST /workflow/executions/:id/cancel (§6).
func (s *Server) cancelHandler(c *gin.Context) {
	executionID := c.Param("id")

	if err := s.engine.Cancel(c.Request.Context(), executionID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
