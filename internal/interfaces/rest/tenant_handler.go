package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// TenantUpdateService pushes an application bundle to every tenant that has it
type TenantUpdateService interface {
	UpdateApplication(ctx context.Context, bundle *models.Bundle) (*services.TenantUpdateResult, error)
}

// TenantHandler handles /api/tenants endpoints
type TenantHandler struct {
	svc TenantUpdateService
}

func NewTenantHandler(svc TenantUpdateService) *TenantHandler {
	return &TenantHandler{svc: svc}
}

// UpdateApplicationRequest carries the bundle of one application.
type UpdateApplicationRequest struct {
	Data *models.Bundle `json:"data" binding:"required"`
}

// UpdateApplication handles POST /api/tenants/update-application
func (h *TenantHandler) UpdateApplication(c *gin.Context) {
	var req UpdateApplicationRequest
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.svc.UpdateApplication(c.Request.Context(), req.Data)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
