package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ValidatePromoCode(c *gin.Context) {
	promo, err := s.promos.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": promo})
}
