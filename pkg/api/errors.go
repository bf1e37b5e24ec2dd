package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ctihunt/workflowengine/pkg/catalog"
	"github.com/ctihunt/workflowengine/pkg/workflow"
)

// writeServiceError maps an engine/catalog error to an HTTP status and
// writes the JSON error envelope, mirroring the teacher's mapServiceError.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrArticleNotFound), errors.Is(err, catalog.ErrExecutionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("unexpected api error", "err", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
