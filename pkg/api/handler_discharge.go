package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// analyzeDischarge handles POST /api/v1/discharges/:id/analyze: run the
// transcript analyzer over the captured instructions and, unless the
// request opts out, schedule the recommended calls.
func (s *Server) analyzeDischarge(c *gin.Context) {
	var req AnalyzeDischargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("id")
	analysis, err := s.analyzer.Analyze(c.Request.Context(), sessionID, req.Patient.model(), req.instructions())
	if err != nil {
		abortStoreError(c, err)
		return
	}

	resp := gin.H{"analysis": analysis}
	if req.Schedule == nil || *req.Schedule {
		items, err := s.scheduler.ScheduleFromAnalysis(c.Request.Context(), req.Patient.model(), req.DischargeTime, analysis)
		if err != nil {
			abortStoreError(c, err)
			return
		}
		resp["scheduled"] = items
	}
	c.JSON(http.StatusOK, resp)
}
