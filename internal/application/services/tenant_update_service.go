package services

import (
	"context"
	"log"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// TenantUpdateResult reports which tenants received an application update.
type TenantUpdateResult struct {
	ApplicationID string                   `json:"applicationId"`
	Updated       []string                 `json:"updated"`
	Failed        map[string]string        `json:"failed,omitempty"`
	Results       map[string]*ImportResult `json:"results,omitempty"`
}

// TenantUpdateService pushes a new version of an application to every
// tenant that already runs it.
type TenantUpdateService struct {
	directory ports.TenantDirectory
	tenants   *TenantRegistry
	pipeline  *ImportPipeline
}

func NewTenantUpdateService(directory ports.TenantDirectory, tenants *TenantRegistry, pipeline *ImportPipeline) *TenantUpdateService {
	return &TenantUpdateService{directory: directory, tenants: tenants, pipeline: pipeline}
}

// UpdateApplication imports bundle into each tenant holding its application,
// one tenant at a time. A tenant that fails does not stop the others.
func (s *TenantUpdateService) UpdateApplication(ctx context.Context, bundle *models.Bundle) (*TenantUpdateResult, error) {
	if bundle == nil {
		return nil, apperrors.NewValidationError("data", "bundle is required")
	}
	appID := bundle.ApplicationID()
	if appID == "" {
		return nil, apperrors.NewValidationError("data", "bundle carries no application")
	}
	if s.directory == nil {
		return nil, apperrors.NewInternalError("no tenant directory configured", nil)
	}

	ids, err := s.directory.TenantIDs(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("🔄 Updating application %s across %d tenants", appID, len(ids))

	result := &TenantUpdateResult{
		ApplicationID: appID,
		Updated:       []string{},
		Failed:        map[string]string{},
		Results:       map[string]*ImportResult{},
	}
	for _, id := range ids {
		tenant, err := s.tenants.Get(ctx, id)
		if err != nil {
			log.Printf("⚠️ Skipping tenant %s: %v", id, err)
			result.Failed[id] = err.Error()
			continue
		}
		if _, err := tenant.Store.ByID(ctx, appID); err != nil {
			if !apperrors.IsNotFound(err) {
				result.Failed[id] = err.Error()
			}
			continue
		}

		// Each import consumes its bundle, so every tenant gets a fresh copy.
		res, err := s.pipeline.Import(ctx, tenant, cloneBundle(bundle))
		if err != nil {
			log.Printf("❌ Update of tenant %s failed: %v", id, err)
			result.Failed[id] = err.Error()
			continue
		}
		result.Updated = append(result.Updated, id)
		result.Results[id] = res
	}
	log.Printf("✅ Application %s updated in %d tenants", appID, len(result.Updated))
	return result, nil
}

func cloneBundle(b *models.Bundle) *models.Bundle {
	out := &models.Bundle{
		Definitions:           make([]*models.Definition, 0, len(b.Definitions)),
		Files:                 b.Files,
		SiteObjectConnections: b.SiteObjectConnections,
	}
	for _, d := range b.Definitions {
		if d != nil {
			out.Definitions = append(out.Definitions, d.Clone())
		}
	}
	for _, r := range b.Roles {
		c := *r
		out.Roles = append(out.Roles, &c)
	}
	for _, sc := range b.Scopes {
		c := *sc
		out.Scopes = append(out.Scopes, &c)
	}
	return out
}
