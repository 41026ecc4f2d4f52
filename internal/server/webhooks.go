package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook acknowledges processed, duplicate and skipped events
// with 200. Failures return 500 so the provider redelivers. Oversized bodies
// are refused with 413 before verification.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errorPayload{
				Type:    "payload_too_large",
				Message: "webhook body exceeds limit",
			}})
			return
		}
		AbortWithError(c, invalidRequestError("unreadable body"))
		return
	}

	outcome, err := s.webhooks.Handle(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		s.log.Warn("webhook not processed",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
