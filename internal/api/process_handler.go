package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProcessHandler handles pipeline run HTTP requests.
type ProcessHandler struct {
	svc Pipeline
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(svc Pipeline) *ProcessHandler {
	return &ProcessHandler{svc: svc}
}

// Process handles POST /api/v1/process. With a batch_id query parameter it
// runs the pipeline over that batch; without one it runs over every staged
// batch. Per-record failures are reported inside the returned reports, not
// as an HTTP error.
func (h *ProcessHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()

	if batchID := c.Query("batch_id"); batchID != "" {
		report, err := h.svc.ProcessBatch(ctx, batchID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": []any{report}})
		return
	}

	reports, err := h.svc.ProcessAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"reports": reports,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// ListBatches handles GET /api/v1/batches.
func (h *ProcessHandler) ListBatches(c *gin.Context) {
	batchIDs, err := h.svc.ListBatches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batchIDs})
}
