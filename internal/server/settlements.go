package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultSettlementBatchSize = 50
	maxSettlementBatchSize     = 500
)

type runSettlementsRequest struct {
	BatchSize int `json:"batch_size"`
}

// RunSettlements triggers one settlement batch on demand. The scheduler
// runs the same batch on its own interval; this endpoint exists for
// operators who cannot wait for the next tick.
func (s *Server) RunSettlements(c *gin.Context) {
	var req runSettlementsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if req.BatchSize < 0 || req.BatchSize > maxSettlementBatchSize {
		AbortWithError(c, newValidationError("batch_size", "invalid_batch_size", "invalid batch size"))
		return
	}
	if req.BatchSize == 0 {
		req.BatchSize = defaultSettlementBatchSize
	}

	report, err := s.settler.Run(c.Request.Context(), req.BatchSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
