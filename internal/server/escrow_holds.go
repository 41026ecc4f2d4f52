package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/placementpay/internal/access"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
)

func (s *Server) CreateEscrowHold(c *gin.Context) {
	var req escrowdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed body"))
		return
	}

	resp, err := s.escrow.Create(c.Request.Context(), accessFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListEscrowHolds(c *gin.Context) {
	var query escrowdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError("malformed query"))
		return
	}
	query.PlacementID = strings.TrimSpace(query.PlacementID)
	query.Status = strings.TrimSpace(query.Status)

	resp, err := s.escrow.List(c.Request.Context(), accessFromContext(c), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEscrowHold(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.escrow.Get(c.Request.Context(), accessFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateEscrowHold(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req escrowdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("malformed body"))
		return
	}

	resp, err := s.escrow.Update(c.Request.Context(), accessFromContext(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReleaseEscrowHold(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.escrow.Release(c.Request.Context(), accessFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelEscrowHold(c *gin.Context) {
	s.closeEscrowHold(c, s.escrow.Cancel)
}

func (s *Server) ExpireEscrowHold(c *gin.Context) {
	s.closeEscrowHold(c, s.escrow.Expire)
}

type closeHoldFunc func(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*escrowdomain.Hold, error)

func (s *Server) closeEscrowHold(c *gin.Context, fn closeHoldFunc) {
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

	resp, err := fn(c.Request.Context(), accessFromContext(c), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessDueEscrowReleases(c *gin.Context) {
	summary, err := s.escrow.ProcessDueReleases(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
