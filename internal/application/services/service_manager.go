package services

import (
	"context"
	"log"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// ServiceManager wires every service with its dependencies.
type ServiceManager struct {
	EventBus      *EventBus
	Notifier      *EventNotifier
	Tenants       *TenantRegistry
	Pipeline      *ImportPipeline
	Apps          *AppService
	Definitions   *DefinitionService
	TenantUpdates *TenantUpdateService
}

// NewServiceManager creates a service manager. directory may be nil when
// no site database is configured; tenant-wide updates are then refused.
func NewServiceManager(factory TenantFactory, directory ports.TenantDirectory, systemRoles []string, opts ImportOptions) *ServiceManager {
	sm := &ServiceManager{}

	// Initialize services in dependency order
	sm.EventBus = NewEventBus()
	sm.Notifier = NewEventNotifier(sm.EventBus)
	sm.Tenants = NewTenantRegistry(factory, systemRoles)
	sm.Pipeline = NewImportPipeline(opts, sm.Notifier, sm.EventBus)
	sm.Apps = NewAppService(sm.Tenants)
	sm.Definitions = NewDefinitionService(sm.Tenants, sm.Pipeline, sm.Apps, sm.EventBus, opts.Retry)
	sm.TenantUpdates = NewTenantUpdateService(directory, sm.Tenants, sm.Pipeline)

	return sm
}

// AnnounceStale tells every listener that definitions may have changed while
// this process was not running.
func (sm *ServiceManager) AnnounceStale(ctx context.Context) {
	if err := sm.EventBus.Publish(ctx, events.DefinitionStale, events.StalePayload{}); err != nil {
		log.Printf("⚠️ Failed to announce stale definitions: %v", err)
		return
	}
	log.Println("📣 Announced stale definitions")
}
