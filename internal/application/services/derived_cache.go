package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// DefaultSerializeWorkers bounds concurrent bundle serializations per tenant.
const DefaultSerializeWorkers = 2

// DerivedCache holds read-optimized projections of one tenant's definitions:
// the definition ids visible to a role set, serialized bundles keyed by role
// set or app, and the freshness stamps polling clients compare against.
// Everything here can be rebuilt from the DefinitionStore.
type DerivedCache struct {
	store       *DefinitionStore
	freshness   ports.FreshnessStore
	systemRoles map[string]bool

	mu         sync.RWMutex
	generation uint64
	idsByRoles map[models.RoleSetKey][]string
	serialized map[string][]byte

	group   singleflight.Group
	workers chan struct{}
}

func NewDerivedCache(store *DefinitionStore, freshness ports.FreshnessStore, systemRoles []string) *DerivedCache {
	roles := make(map[string]bool, len(systemRoles))
	for _, r := range systemRoles {
		roles[r] = true
	}
	return &DerivedCache{
		store:       store,
		freshness:   freshness,
		systemRoles: roles,
		idsByRoles:  make(map[models.RoleSetKey][]string),
		serialized:  make(map[string][]byte),
		workers:     make(chan struct{}, DefaultSerializeWorkers),
	}
}

func appCacheKey(appID string) string { return "app:" + appID }

func roleCacheKey(key models.RoleSetKey) string { return "roles:" + string(key) }

// IDsForRoles returns the ids of every definition visible to the role set:
// applications granted to one of the roles (all of them when a system role
// is present), everything they are built from, and all system objects.
func (c *DerivedCache) IDsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	key := models.NewRoleSetKey(roleIDs)
	if err := c.store.Sync(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	ids, ok := c.idsByRoles[key]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return ids, nil
	}

	log.Printf("🔄 Building definition ids for roles [%s]", key)
	snapshot, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ids = c.buildIDs(snapshot, key.RoleIDs())

	c.mu.Lock()
	if c.generation == gen {
		c.idsByRoles[key] = ids
	}
	c.mu.Unlock()
	return ids, nil
}

func (c *DerivedCache) hasSystemRole(roleIDs []string) bool {
	for _, id := range roleIDs {
		if c.systemRoles[id] {
			return true
		}
	}
	return false
}

func (c *DerivedCache) buildIDs(snapshot models.DefinitionMap, roleIDs []string) []string {
	ids := models.NewIDSet()
	all := c.hasSystemRole(roleIDs)

	for _, def := range sortedDefs(snapshot, models.TypeApplication) {
		app, err := models.NewApplication(def)
		if err != nil {
			log.Printf("⚠️ Skipping unreadable application %s: %v", def.ID, err)
			continue
		}
		if all || app.IsAccessibleForRoles(roleIDs) {
			app.ExportIDs(ids, snapshot)
		}
	}
	addSystemObjects(ids, snapshot)
	return ids.IDs()
}

// addSystemObjects exports every system-flagged object into ids.
func addSystemObjects(ids *models.IDSet, snapshot models.DefinitionMap) {
	for _, def := range sortedDefs(snapshot, models.TypeObject) {
		obj, err := models.NewSchemaObject(def, snapshot)
		if err != nil {
			log.Printf("⚠️ Skipping unreadable object %s: %v", def.ID, err)
			continue
		}
		if obj.IsSystemObject() {
			obj.ExportIDs(ids, snapshot)
		}
	}
}

// ForRoles returns the serialized definitions visible to the role set.
func (c *DerivedCache) ForRoles(ctx context.Context, roleIDs []string) ([]byte, error) {
	key := models.NewRoleSetKey(roleIDs)
	return c.serializedFor(ctx, roleCacheKey(key), func(ctx context.Context) (interface{}, error) {
		ids, err := c.IDsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, err
		}
		snapshot, err := c.store.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		defs := make([]*models.Definition, 0, len(ids))
		for _, id := range ids {
			if d, ok := snapshot[id]; ok {
				defs = append(defs, d)
			}
		}
		return defs, nil
	})
}

// ForApp returns the serialized value produced by build, cached by app id.
func (c *DerivedCache) ForApp(ctx context.Context, appID string, build func(ctx context.Context) (interface{}, error)) ([]byte, error) {
	return c.serializedFor(ctx, appCacheKey(appID), build)
}

// serializedFor serves a cached serialization or builds it once, however
// many requests ask for the same key concurrently. The build runs on its own
// goroutine and marshalling takes one of a bounded set of worker slots.
func (c *DerivedCache) serializedFor(ctx context.Context, key string, build func(ctx context.Context) (interface{}, error)) ([]byte, error) {
	if err := c.store.Sync(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	data, ok := c.serialized[key]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	ch := c.group.DoChan(fmt.Sprintf("%d|%s", gen, key), func() (interface{}, error) {
		// The build outlives a single caller's cancellation; others may be waiting.
		bctx := context.WithoutCancel(ctx)
		value, err := build(bctx)
		if err != nil {
			return nil, err
		}
		data, err := c.marshal(bctx, value)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.serialized[key] = data
		}
		c.mu.Unlock()
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *DerivedCache) marshal(ctx context.Context, value interface{}) ([]byte, error) {
	select {
	case c.workers <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.workers }()

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize definitions: %w", err)
	}
	return data, nil
}

// Clear drops every cached projection. Builds already in flight finish but
// are not stored.
func (c *DerivedCache) Clear() {
	c.mu.Lock()
	c.generation++
	c.idsByRoles = make(map[models.RoleSetKey][]string)
	c.serialized = make(map[string][]byte)
	c.mu.Unlock()
}

// Updated returns the global "definitions updated" stamp.
func (c *DerivedCache) Updated(ctx context.Context) (int64, error) {
	return c.freshness.Updated(ctx)
}

// MobileUpdated returns the stamp of one mobile app.
func (c *DerivedCache) MobileUpdated(ctx context.Context, appID string) (int64, error) {
	return c.freshness.MobileUpdated(ctx, appID)
}

// sortedDefs returns the definitions of type t ordered by id.
func sortedDefs(m models.DefinitionMap, t models.DefinitionType) []*models.Definition {
	var out []*models.Definition
	for _, d := range m {
		if d.Type == t {
			out = append(out, d)
		}
	}
	sortByID(out)
	return out
}
