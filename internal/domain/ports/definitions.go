package ports

import (
	"context"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// DefinitionRepository persists raw definition rows of one tenant.
type DefinitionRepository interface {
	// Create inserts a new row. A duplicate id yields a ConflictError.
	Create(ctx context.Context, def *models.Definition) error
	// Update replaces name, type and json of an existing row.
	Update(ctx context.Context, def *models.Definition) error
	// Delete removes a row and returns what was deleted.
	Delete(ctx context.Context, id string) (*models.Definition, error)
	FindByID(ctx context.Context, id string) (*models.Definition, error)
	FindAll(ctx context.Context) ([]*models.Definition, error)
}

// RoleStore persists roles and scopes of one tenant.
type RoleStore interface {
	UpsertScope(ctx context.Context, scope *models.Scope) error
	// UpsertRole never overwrites the user assignments of an existing role.
	UpsertRole(ctx context.Context, role *models.Role) error
	RolesByIDs(ctx context.Context, ids []string) ([]*models.Role, error)
	ScopesByIDs(ctx context.Context, ids []string) ([]*models.Scope, error)
}

// TenantDirectory lists the tenants of the site.
type TenantDirectory interface {
	TenantIDs(ctx context.Context) ([]string, error)
}

// FileImporter stores a bundled file attachment.
type FileImporter interface {
	Import(ctx context.Context, key string, file models.FileAttachment) error
}

// Notifier delivers import failures to their audience.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, audience models.Audience, errs []*models.ImportError)
}

// FreshnessStore keeps the timestamps polling clients compare against.
// Reads initialize a missing stamp to the current time.
type FreshnessStore interface {
	Updated(ctx context.Context) (int64, error)
	MobileUpdated(ctx context.Context, appID string) (int64, error)
	// Stamp clears every per-app stamp and sets a new global stamp.
	Stamp(ctx context.Context) error
}
