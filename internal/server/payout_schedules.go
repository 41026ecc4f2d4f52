package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreatePayoutSchedule(c *gin.Context) {
	var req scheduledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed body"))
		return
	}

	resp, err := s.schedules.Create(c.Request.Context(), accessFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPayoutSchedules(c *gin.Context) {
	var query scheduledomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError("malformed query"))
		return
	}
	query.PlacementID = strings.TrimSpace(query.PlacementID)
	query.Status = strings.TrimSpace(query.Status)

	resp, err := s.schedules.List(c.Request.Context(), accessFromContext(c), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayoutSchedule(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.schedules.Get(c.Request.Context(), accessFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePayoutSchedule(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req scheduledomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed body"))
		return
	}

	resp, err := s.schedules.Update(c.Request.Context(), accessFromContext(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TriggerPayoutSchedule(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.schedules.TriggerProcessing(c.Request.Context(), accessFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelPayoutSchedule(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.schedules.Cancel(c.Request.Context(), accessFromContext(c), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessDuePayoutSchedules(c *gin.Context) {
	summary, err := s.schedules.ProcessDueSchedules(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
