package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/temcen/shopwise/pkg/models"
)

func abortWithError(c *gin.Context, status int, code, message string, details any) {
	resp := models.ErrorResponse(code, message)
	resp.Error.Details = details
	c.AbortWithStatusJSON(status, resp)
}
