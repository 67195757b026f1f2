// Package services provides the business logic of the definition manager.
//
// This package contains:
//   - the per-tenant definition store with its in-memory index (DefinitionStore)
//   - the bulk import and migration pipeline (ImportPipeline)
//   - the derived caches for role and app scoped reads (DerivedCache)
//   - the single invalidation point for those caches (CacheInvalidator)
//   - single definition writes, reads and migrations (DefinitionService, AppService)
//   - propagation of an application to every tenant (TenantUpdateService)
//   - event publishing and subscription (EventBus)
//
// Tenant-owned instances are reached through the TenantRegistry; nothing in
// this package keeps definitions in process-wide state.
package services
