package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/placementpay/internal/access"
	obscontext "github.com/smallbiznis/placementpay/internal/observability/context"
)

const contextAccessKey = "access_context"

// AuthRequired resolves the bearer token into an access context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			AbortWithError(c, access.ErrUnauthenticated)
			return
		}

		ac, err := s.resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextAccessKey, ac)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", ac.UserID))
		c.Next()
	}
}

// authorizeAction gates routes whose services do not take an access context.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizer.Authorize(c.Request.Context(), accessFromContext(c), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func accessFromContext(c *gin.Context) access.Context {
	value, ok := c.Get(contextAccessKey)
	if !ok {
		return access.Context{}
	}
	ac, _ := value.(access.Context)
	return ac
}

func (s *Server) limitPromoLookups() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := s.promoLimit.Allow(c.Request.Context(), accessFromContext(c).UserID)
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many promo code lookups",
		}})
	}
}
