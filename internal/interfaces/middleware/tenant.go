package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/pkg/constants"
	"github.com/digi-serve/ab-service-definition-manager/pkg/utils"
)

// RequireTenant reads the tenant id from the X-Tenant-ID header. Requests
// without one, or with characters not allowed in a schema name, are rejected.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(constants.HeaderTenantID))
		if tenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				constants.ResponseError: "Missing tenant",
				constants.FieldMessage:  "The " + constants.HeaderTenantID + " header is required",
				"code":                  "VALIDATION_ERROR",
				"data":                  nil,
			})
			c.Abort()
			return
		}

		if !utils.IsValidTenantID(tenantID) {
			c.JSON(http.StatusBadRequest, gin.H{
				constants.ResponseError: "Invalid tenant",
				constants.FieldMessage:  "The " + constants.HeaderTenantID + " header may only contain letters, digits, '_' and '-'",
				"code":                  "VALIDATION_ERROR",
				"data":                  nil,
			})
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyTenant, tenantID)
		c.Next()
	}
}

// Cors allows the designer UI to call the service from another origin.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+constants.HeaderTenantID+", "+constants.HeaderXRequestID)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
