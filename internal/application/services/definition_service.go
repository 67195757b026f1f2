package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/digi-serve/ab-service-definition-manager/pkg/throttle"
)

// DefinitionPatch holds the values of a definition update. Nil members are
// left unchanged; a non-empty JSON replaces the whole payload.
type DefinitionPatch struct {
	Name *string                `json:"name,omitempty"`
	Type *models.DefinitionType `json:"type,omitempty"`
	JSON json.RawMessage        `json:"json,omitempty"`
}

// DefinitionService is the entry point for definition reads and writes of
// every tenant.
type DefinitionService struct {
	tenants   *TenantRegistry
	pipeline  *ImportPipeline
	apps      *AppService
	publisher ports.EventPublisher
	retry     throttle.DeadlockRetryPolicy
}

func NewDefinitionService(tenants *TenantRegistry, pipeline *ImportPipeline, apps *AppService, publisher ports.EventPublisher, retry throttle.DeadlockRetryPolicy) *DefinitionService {
	return &DefinitionService{
		tenants:   tenants,
		pipeline:  pipeline,
		apps:      apps,
		publisher: publisher,
		retry:     retry,
	}
}

// Import applies a bundle to the tenant. See ImportPipeline.Import.
func (s *DefinitionService) Import(ctx context.Context, tenantID string, bundle *models.Bundle) (*ImportResult, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Import(ctx, tenant, bundle)
}

// Create stores a new definition.
func (s *DefinitionService) Create(ctx context.Context, tenantID string, def *models.Definition) (*models.Definition, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var created *models.Definition
	err = s.retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
		var err error
		created, err = tenant.Store.Create(ctx, def)
		return err
	})
	if err != nil {
		return nil, err
	}
	tenant.Invalidator.Invalidate(ctx)

	log.Printf("✅ Definition created: %s (%s)", created.ID, created.Type)
	s.broadcast(ctx, events.DefinitionCreated, events.DefinitionChange{TenantID: tenantID, ID: created.ID, After: created})
	return created, nil
}

// Update applies patch to an existing definition.
func (s *DefinitionService) Update(ctx context.Context, tenantID, id string, patch DefinitionPatch) (*models.Definition, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	before, err := tenant.Store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := before.Clone()
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if len(patch.JSON) > 0 {
		next.JSON = append(json.RawMessage(nil), patch.JSON...)
	}

	var updated *models.Definition
	err = s.retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
		var err error
		updated, err = tenant.Store.Update(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	tenant.Invalidator.Invalidate(ctx)

	log.Printf("✅ Definition updated: %s (%s)", updated.ID, updated.Type)
	s.broadcast(ctx, events.DefinitionUpdated, events.DefinitionChange{TenantID: tenantID, ID: id, Before: before, After: updated})
	return updated, nil
}

// Delete removes a definition and returns it.
func (s *DefinitionService) Delete(ctx context.Context, tenantID, id string) (*models.Definition, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.NewValidationError("id", "definition id is required")
	}

	var deleted *models.Definition
	err = s.retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = tenant.Store.Delete(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	tenant.Invalidator.Invalidate(ctx)

	log.Printf("🗑️ Definition deleted: %s (%s)", deleted.ID, deleted.Type)
	s.broadcast(ctx, events.DefinitionDestroyed, events.DefinitionChange{TenantID: tenantID, ID: id, Before: deleted})
	return deleted, nil
}

func (s *DefinitionService) broadcast(ctx context.Context, t events.EventType, change events.DefinitionChange) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, t, change); err != nil {
		log.Printf("⚠️ Failed to broadcast %s for %s: %v", t, change.ID, err)
	}
}

// ForRoles returns the serialized definitions visible to the role set.
func (s *DefinitionService) ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]byte, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.Cache.ForRoles(ctx, roleIDs)
}

// ForApp returns the serialized export of one application together with
// every system object.
func (s *DefinitionService) ForApp(ctx context.Context, tenantID, appID string) ([]byte, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.Cache.ForApp(ctx, appID, func(ctx context.Context) (interface{}, error) {
		export, err := s.apps.export(ctx, tenant, appID)
		if err != nil {
			return nil, err
		}
		snapshot, err := tenant.Store.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		have := models.NewIDSet()
		for _, d := range export.Definitions {
			have.Add(d.ID)
		}
		system := models.NewIDSet()
		addSystemObjects(system, snapshot)
		for _, id := range system.IDs() {
			if d, ok := snapshot[id]; ok && have.Add(id) {
				export.Definitions = append(export.Definitions, d)
			}
		}
		return export, nil
	})
}

// CheckUpdate returns the stamp of the tenant's last definition change.
func (s *DefinitionService) CheckUpdate(ctx context.Context, tenantID string) (int64, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return tenant.Cache.Updated(ctx)
}

// MobileCheckUpdate returns the stamp a mobile app compares against.
func (s *DefinitionService) MobileCheckUpdate(ctx context.Context, tenantID, appID string) (int64, error) {
	if appID == "" {
		return 0, apperrors.NewValidationError("appID", "application id is required")
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return tenant.Cache.MobileUpdated(ctx, appID)
}
