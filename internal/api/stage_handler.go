// Package api provides HTTP handlers for the studies pipeline service.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trialwell/pipeline/internal/domain"
)

// Pipeline defines the pipeline operations needed by the handlers.
type Pipeline interface {
	StageStudy(ctx context.Context, study *domain.RawStudy) error
	StageBatch(ctx context.Context, studies []*domain.RawStudy) (string, int, error)
	ProcessBatch(ctx context.Context, batchID string) (*domain.BatchReport, error)
	ProcessAll(ctx context.Context) ([]*domain.BatchReport, error)
	ListBatches(ctx context.Context) ([]string, error)
}

// BatchStageRequest wraps multiple raw studies for bulk staging.
type BatchStageRequest struct {
	Studies []*domain.RawStudy `binding:"required,min=1" json:"studies"`
}

// StageHandler handles raw-study staging HTTP requests.
type StageHandler struct {
	svc Pipeline
}

// NewStageHandler creates a new stage handler.
func NewStageHandler(svc Pipeline) *StageHandler {
	return &StageHandler{svc: svc}
}

// StageStudy handles POST /api/v1/studies.
func (h *StageHandler) StageStudy(c *gin.Context) {
	var study domain.RawStudy
	if bindErr := c.ShouldBindJSON(&study); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	if stageErr := h.svc.StageStudy(c.Request.Context(), &study); stageErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": stageErr.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":   "staged",
		"batch_id": study.BatchID,
	})
}

// StageBatch handles POST /api/v1/studies/batch.
func (h *StageHandler) StageBatch(c *gin.Context) {
	var req BatchStageRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	batchID, staged, stageErr := h.svc.StageBatch(c.Request.Context(), req.Studies)
	if stageErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    stageErr.Error(),
			"batch_id": batchID,
			"staged":   staged,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":   "staged",
		"batch_id": batchID,
		"staged":   staged,
	})
}
