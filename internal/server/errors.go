package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var errInvalidRequest = errs.New(errs.KindValidation, "invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError(detail string) error {
	return errs.Detail(errInvalidRequest, "%s", detail)
}

func mapError(err error) (int, errorPayload) {
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return http.StatusBadRequest, errorPayload{Type: string(errs.KindValidation), Message: pagination.ErrInvalidPageToken.Error()}
	}

	kind := errs.KindOf(err)
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest, errorPayload{Type: string(kind), Message: err.Error()}
	case errs.KindUnauthorized:
		return http.StatusUnauthorized, errorPayload{Type: string(kind), Message: "unauthorized"}
	case errs.KindForbidden:
		return http.StatusForbidden, errorPayload{Type: string(kind), Message: forbiddenMessage(err)}
	case errs.KindNotFound:
		return http.StatusNotFound, errorPayload{Type: string(kind), Message: err.Error()}
	case errs.KindInvalidState, errs.KindSkip:
		return http.StatusConflict, errorPayload{Type: string(errs.KindInvalidState), Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: string(errs.KindInternal), Message: "internal server error"}
	}
}

func forbiddenMessage(err error) string {
	detail := strings.TrimSpace(strings.TrimPrefix(err.Error(), "forbidden"))
	detail = strings.TrimSpace(strings.TrimPrefix(detail, ":"))
	if detail == "" {
		return "Forbidden"
	}
	return "Forbidden: " + detail
}

// classifyErrorForLog feeds the request log line.
func classifyErrorForLog(err error) string {
	if err == nil {
		return ""
	}
	return errs.CodeOf(err)
}
