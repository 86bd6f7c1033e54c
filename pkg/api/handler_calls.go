package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultPendingWindow bounds GET /api/v1/calls/pending when no explicit
// window is given.
const defaultPendingWindow = 7 * 24 * time.Hour

// scheduleCalls handles POST /api/v1/calls: expand discharge orders into
// scheduled follow-up calls.
func (s *Server) scheduleCalls(c *gin.Context) {
	var req ScheduleCallsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := s.scheduler.ScheduleFromOrders(c.Request.Context(), req.Patient.model(), req.DischargeTime, req.orders())
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"scheduled": items})
}

// pendingCalls handles GET /api/v1/calls/pending. Optional from/to query
// parameters (RFC3339) bound the window; the default is now through the
// next seven days.
func (s *Server) pendingCalls(c *gin.Context) {
	now := time.Now().UTC()
	from, to := now, now.Add(defaultPendingWindow)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
	}

	items, err := s.scheduler.PendingCalls(c.Request.Context(), from, to)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": items, "count": len(items)})
}

// getCall handles GET /api/v1/calls/:id.
func (s *Server) getCall(c *gin.Context) {
	item, err := s.scheduler.Call(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// cancelCall handles DELETE /api/v1/calls/:id. Only pending calls can be
// cancelled; anything else conflicts.
func (s *Server) cancelCall(c *gin.Context) {
	ok, err := s.scheduler.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortStoreError(c, err)
		return
	}
	if !ok {
		// Distinguish a missing call from one that already advanced.
		if _, err := s.scheduler.Call(c.Request.Context(), c.Param("id")); err != nil {
			abortStoreError(c, err)
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "call is not in a cancellable state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// patientCalls handles GET /api/v1/patients/:id/calls.
func (s *Server) patientCalls(c *gin.Context) {
	items, err := s.scheduler.PatientCalls(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": items, "count": len(items)})
}
