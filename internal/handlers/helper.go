package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the candidate identity set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

// RequireUser rejects requests without a candidate identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUser returns the identity RequireUser stored, writing 401 if absent.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID, true
}

// requestContext carries the request id into service calls.
func requestContext(c *gin.Context) context.Context {
	return context.WithValue(c.Request.Context(), services.RequestIDKey, c.GetHeader(utils.RequestIDHeader))
}
