package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/digi-serve/ab-service-definition-manager/pkg/utils"
)

// TenantResources are the infrastructure pieces of one tenant.
type TenantResources struct {
	Definitions ports.DefinitionRepository
	Roles       ports.RoleStore
	Schema      ports.SchemaSessionProvider
	Inspector   ports.SchemaInspector
	Files       ports.FileImporter
	Freshness   ports.FreshnessStore
	// SharedFreshness is set when other replicas stamp the same freshness
	// store, so their writes must be picked up on read.
	SharedFreshness bool
}

// TenantFactory opens the resources of a tenant.
type TenantFactory interface {
	Open(ctx context.Context, tenantID string) (*TenantResources, error)
}

// TenantFactoryFunc adapts a function to TenantFactory.
type TenantFactoryFunc func(ctx context.Context, tenantID string) (*TenantResources, error)

func (f TenantFactoryFunc) Open(ctx context.Context, tenantID string) (*TenantResources, error) {
	return f(ctx, tenantID)
}

// Tenant owns every instance scoped to one tenant.
type Tenant struct {
	ID          string
	Store       *DefinitionStore
	Roles       ports.RoleStore
	Schema      ports.SchemaSessionProvider
	Inspector   ports.SchemaInspector
	Files       ports.FileImporter
	Cache       *DerivedCache
	Invalidator *CacheInvalidator

	imports atomic.Int32
}

// NewTenant assembles a tenant from its resources.
func NewTenant(id string, res *TenantResources, systemRoles []string) *Tenant {
	store := NewDefinitionStore(res.Definitions)
	cache := NewDerivedCache(store, res.Freshness, systemRoles)
	if res.SharedFreshness {
		store.FollowPeers(res.Freshness, cache.Clear)
	}
	return &Tenant{
		ID:          id,
		Store:       store,
		Roles:       res.Roles,
		Schema:      res.Schema,
		Inspector:   res.Inspector,
		Files:       res.Files,
		Cache:       cache,
		Invalidator: NewCacheInvalidator(id, cache, res.Freshness),
	}
}

// beginImport marks an import as running and returns how many are running
// now, including this one.
func (t *Tenant) beginImport() int32 { return t.imports.Add(1) }

func (t *Tenant) endImport() { t.imports.Add(-1) }

// TenantRegistry builds tenants on first use and keeps them.
type TenantRegistry struct {
	factory     TenantFactory
	systemRoles []string

	mu      sync.Mutex
	tenants map[string]*Tenant
	opening singleflight.Group
}

func NewTenantRegistry(factory TenantFactory, systemRoles []string) *TenantRegistry {
	return &TenantRegistry{
		factory:     factory,
		systemRoles: append([]string(nil), systemRoles...),
		tenants:     make(map[string]*Tenant),
	}
}

// Get returns the tenant, opening it on first use. Concurrent first uses of
// one tenant share a single open; other tenants are not held up by it.
func (r *TenantRegistry) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		return nil, apperrors.NewValidationError("tenant", "tenant id is required")
	}
	if !utils.IsValidTenantID(tenantID) {
		return nil, apperrors.NewValidationError("tenant", "tenant id may only contain letters, digits, '_' and '-'")
	}

	if t, ok := r.lookup(tenantID); ok {
		return t, nil
	}

	v, err, _ := r.opening.Do(tenantID, func() (interface{}, error) {
		if t, ok := r.lookup(tenantID); ok {
			return t, nil
		}
		res, err := r.factory.Open(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to open tenant %s: %w", tenantID, err)
		}
		t := NewTenant(tenantID, res, r.systemRoles)
		r.mu.Lock()
		r.tenants[tenantID] = t
		r.mu.Unlock()
		log.Printf("🏢 Tenant %s ready", tenantID)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tenant), nil
}

func (r *TenantRegistry) lookup(tenantID string) (*Tenant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	return t, ok
}

// SystemRoles returns the roles that see every application.
func (r *TenantRegistry) SystemRoles() []string {
	return append([]string(nil), r.systemRoles...)
}
