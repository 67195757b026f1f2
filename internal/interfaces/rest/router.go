package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/interfaces/middleware"
)

// RegisterRoutes mounts every endpoint of the service on router.
func RegisterRoutes(router *gin.Engine, svcMgr *services.ServiceManager) {
	definitionHandler := NewDefinitionHandler(svcMgr.Definitions, svcMgr.EventBus)
	appHandler := NewAppHandler(svcMgr.Apps)
	tenantHandler := NewTenantHandler(svcMgr.TenantUpdates)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "definition_manager",
		})
	})

	api := router.Group("/api")
	{
		definitions := api.Group("/definitions")
		definitions.Use(middleware.RequireTenant())
		{
			definitions.POST("/import", definitionHandler.Import)
			definitions.POST("", definitionHandler.Create)
			definitions.PATCH("/:id", definitionHandler.Update)
			definitions.DELETE("/:id", definitionHandler.Delete)
			definitions.POST("/for-roles", definitionHandler.ForRoles)
			definitions.GET("/app/:id", definitionHandler.ForApp)
			definitions.GET("/check-update", definitionHandler.CheckUpdate)
			definitions.GET("/mobile-check-update/:appID", definitionHandler.MobileCheckUpdate)
			definitions.GET("/events", definitionHandler.Events)
		}

		apps := api.Group("/apps")
		apps.Use(middleware.RequireTenant())
		{
			apps.GET("/:id/export", appHandler.Export)
			apps.GET("/:id/mobile-config", appHandler.MobileConfig)
		}

		objects := api.Group("/objects")
		objects.Use(middleware.RequireTenant())
		{
			objects.GET("/:id/information", appHandler.ObjectInformation)
			objects.GET("/:id/fields/:fieldID/information", appHandler.FieldInformation)
			objects.POST("/:id/migrate", appHandler.MigrateObject)
			objects.POST("/:id/fields/:fieldID/migrate", appHandler.MigrateField)
		}

		// Cross-tenant: the bundle is applied to every tenant running the app.
		tenants := api.Group("/tenants")
		{
			tenants.POST("/update-application", tenantHandler.UpdateApplication)
		}
	}
}
