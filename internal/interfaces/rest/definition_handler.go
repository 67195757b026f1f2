package rest

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/pkg/constants"
)

// DefinitionService defines the definition operations the handler needs
type DefinitionService interface {
	Import(ctx context.Context, tenantID string, bundle *models.Bundle) (*services.ImportResult, error)
	Create(ctx context.Context, tenantID string, def *models.Definition) (*models.Definition, error)
	Update(ctx context.Context, tenantID, id string, patch services.DefinitionPatch) (*models.Definition, error)
	Delete(ctx context.Context, tenantID, id string) (*models.Definition, error)
	ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]byte, error)
	ForApp(ctx context.Context, tenantID, appID string) ([]byte, error)
	CheckUpdate(ctx context.Context, tenantID string) (int64, error)
	MobileCheckUpdate(ctx context.Context, tenantID, appID string) (int64, error)
}

// EventStreamer delivers bus events to a long-lived subscriber.
type EventStreamer interface {
	Stream(ctx context.Context, buffer int, types ...services.EventType) <-chan services.PlatformEvent
}

// streamedEvents are forwarded to designers over SSE.
var streamedEvents = []events.EventType{
	events.DefinitionCreated,
	events.DefinitionUpdated,
	events.DefinitionDestroyed,
	events.DefinitionStale,
}

// DefinitionHandler handles /api/definitions endpoints
type DefinitionHandler struct {
	svc    DefinitionService
	events EventStreamer
}

// NewDefinitionHandler creates a new DefinitionHandler
func NewDefinitionHandler(svc DefinitionService, stream EventStreamer) *DefinitionHandler {
	return &DefinitionHandler{svc: svc, events: stream}
}

// ImportRequest carries a bundle to apply.
type ImportRequest struct {
	JSON *models.Bundle `json:"json" binding:"required"`
}

// RoleRef identifies a role by uuid.
type RoleRef struct {
	UUID string `json:"uuid"`
}

// ForRolesRequest asks for the definitions visible to a set of roles.
type ForRolesRequest struct {
	Roles []RoleRef `json:"roles" binding:"required"`
}

// Import handles POST /api/definitions/import
func (h *DefinitionHandler) Import(c *gin.Context) {
	var req ImportRequest
	if !BindJSON(c, &req) {
		return
	}

	if _, err := h.svc.Import(c.Request.Context(), GetTenantFromContext(c), req.JSON); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Create handles POST /api/definitions
func (h *DefinitionHandler) Create(c *gin.Context) {
	var def models.Definition
	if !BindJSON(c, &def) {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), GetTenantFromContext(c), &def)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update handles PATCH /api/definitions/:id
func (h *DefinitionHandler) Update(c *gin.Context) {
	var patch services.DefinitionPatch
	if !BindJSON(c, &patch) {
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID), patch)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/definitions/:id
func (h *DefinitionHandler) Delete(c *gin.Context) {
	deleted, err := h.svc.Delete(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

// ForRoles handles POST /api/definitions/for-roles
func (h *DefinitionHandler) ForRoles(c *gin.Context) {
	var req ForRolesRequest
	if !BindJSON(c, &req) {
		return
	}

	roleIDs := make([]string, 0, len(req.Roles))
	for _, r := range req.Roles {
		roleIDs = append(roleIDs, r.UUID)
	}
	data, err := h.svc.ForRoles(c.Request.Context(), GetTenantFromContext(c), roleIDs)
	RespondSerialized(c, data, err)
}

// ForApp handles GET /api/definitions/app/:id
func (h *DefinitionHandler) ForApp(c *gin.Context) {
	data, err := h.svc.ForApp(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamID))
	RespondSerialized(c, data, err)
}

// CheckUpdate handles GET /api/definitions/check-update
func (h *DefinitionHandler) CheckUpdate(c *gin.Context) {
	HandleGetEnvelope(c, "updated", func() (interface{}, error) {
		return h.svc.CheckUpdate(c.Request.Context(), GetTenantFromContext(c))
	})
}

// MobileCheckUpdate handles GET /api/definitions/mobile-check-update/:appID
func (h *DefinitionHandler) MobileCheckUpdate(c *gin.Context) {
	HandleGetEnvelope(c, "updated", func() (interface{}, error) {
		return h.svc.MobileCheckUpdate(c.Request.Context(), GetTenantFromContext(c), c.Param(constants.ParamAppID))
	})
}

// Events handles GET /api/definitions/events
func (h *DefinitionHandler) Events(c *gin.Context) {
	tenantID := GetTenantFromContext(c)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	c.Writer.Header().Set(constants.HeaderContentType, constants.ContentTypeEventStream)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	stream := h.events.Stream(ctx, 32, streamedEvents...)
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			if !belongsToTenant(event.Payload, tenantID) {
				return true
			}
			c.SSEvent(event.Type.String(), event)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// belongsToTenant reports whether a designer of tenantID should see the
// payload. Stale events without a tenant concern everyone.
func belongsToTenant(payload interface{}, tenantID string) bool {
	switch p := payload.(type) {
	case events.DefinitionChange:
		return p.TenantID == tenantID
	case events.StalePayload:
		return p.TenantID == "" || p.TenantID == tenantID
	default:
		return false
	}
}
