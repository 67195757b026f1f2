package services

import (
	"context"
	"log"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// CacheInvalidator is the one place derived caches are dropped. It runs
// after every definition write and after every import, successful or not.
type CacheInvalidator struct {
	tenantID  string
	cache     *DerivedCache
	freshness ports.FreshnessStore
}

func NewCacheInvalidator(tenantID string, cache *DerivedCache, freshness ports.FreshnessStore) *CacheInvalidator {
	return &CacheInvalidator{tenantID: tenantID, cache: cache, freshness: freshness}
}

// Invalidate clears the role and app projections, drops every per-app mobile
// stamp and sets a new global stamp.
func (i *CacheInvalidator) Invalidate(ctx context.Context) {
	i.cache.Clear()
	if err := i.freshness.Stamp(context.WithoutCancel(ctx)); err != nil {
		log.Printf("❌ Failed to stamp definitions of tenant %s: %v", i.tenantID, err)
		return
	}
	log.Printf("🧹 Definitions cache cleared for tenant %s", i.tenantID)
}
