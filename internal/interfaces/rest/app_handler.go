package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	"github.com/digi-serve/ab-service-definition-manager/pkg/constants"
)

// AppService defines the application and object operations the handler needs
type AppService interface {
	Export(ctx context.Context, tenantID, appID string) (*services.AppExport, error)
	MobileConfig(ctx context.Context, tenantID, appID string) (*services.MobileConfig, error)
	ObjectInformation(ctx context.Context, tenantID, objectID string) (*services.ObjectInformation, error)
	FieldInformation(ctx context.Context, tenantID, objectID, fieldID string) (*ports.ColumnInfo, error)
	MigrateObject(ctx context.Context, tenantID, id string) error
	MigrateField(ctx context.Context, tenantID, objectID, fieldID string) error
}

// AppHandler handles /api/apps and /api/objects endpoints
type AppHandler struct {
	svc AppService
}

// NewAppHandler creates a new AppHandler
func NewAppHandler(svc AppService) *AppHandler {
	return &AppHandler{svc: svc}
}

// Export handles GET /api/apps/:id/export
func (h *AppHandler) Export(c *gin.Context) {
	export, err := h.svc.Export(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename+".json"))
	c.JSON(http.StatusOK, export)
}

// MobileConfig handles GET /api/apps/:id/mobile-config
func (h *AppHandler) MobileConfig(c *gin.Context) {
	cfg, err := h.svc.MobileConfig(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ObjectInformation handles GET /api/objects/:id/information
func (h *AppHandler) ObjectInformation(c *gin.Context) {
	info, err := h.svc.ObjectInformation(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// FieldInformation handles GET /api/objects/:id/fields/:fieldID/information
func (h *AppHandler) FieldInformation(c *gin.Context) {
	col, err := h.svc.FieldInformation(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID), c.Param(constants.ParamFieldID))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

// MigrateObject handles POST /api/objects/:id/migrate
func (h *AppHandler) MigrateObject(c *gin.Context) {
	if err := h.svc.MigrateObject(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID)); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.ResponseSuccess: true})
}

// MigrateField handles POST /api/objects/:id/fields/:fieldID/migrate
func (h *AppHandler) MigrateField(c *gin.Context) {
	if err := h.svc.MigrateField(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID), c.Param(constants.ParamFieldID)); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.ResponseSuccess: true})
}
