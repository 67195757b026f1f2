// Package bootstrap connects the services to MySQL, Redis and the upload
// directory according to the loaded configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/config"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/cache"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/database"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/persistence"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/storage"
	"github.com/digi-serve/ab-service-definition-manager/pkg/throttle"
)

// Infrastructure owns the connections shared by every tenant.
type Infrastructure struct {
	cfg   *config.Config
	pool  *database.Pool
	redis redis.UniversalClient
}

// Connect prepares the database pool and, when configured, the Redis client.
// Tenant schemas are opened lazily.
func Connect(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{cfg: cfg, pool: database.NewPool(cfg.Database)}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		infra.redis = client
	} else {
		log.Println("⚠️ REDIS_ADDR not set, freshness stamps are kept in memory")
	}
	return infra, nil
}

// Close releases every connection.
func (i *Infrastructure) Close() error {
	err := i.pool.Close()
	if i.redis != nil {
		if rerr := i.redis.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// OpenTenant implements services.TenantFactory.
func (i *Infrastructure) OpenTenant(ctx context.Context, tenantID string) (*services.TenantResources, error) {
	conn, err := i.pool.Get(ctx, i.cfg.TenantDatabase(tenantID))
	if err != nil {
		return nil, err
	}
	res, err := TenantResources(ctx, conn.DB(), tenantID, i.freshness(tenantID), i.cfg.UploadDir, i.cfg.LockWaitTimeout())
	if err != nil {
		return nil, err
	}
	res.SharedFreshness = i.redis != nil
	return res, nil
}

func (i *Infrastructure) freshness(tenantID string) ports.FreshnessStore {
	if i.redis != nil {
		return cache.NewRedisFreshness(i.redis, tenantID)
	}
	return cache.NewMemoryFreshness()
}

// TenantDirectory lists tenants from the site schema. It returns nil when no
// site schema is configured.
func (i *Infrastructure) TenantDirectory(ctx context.Context) (ports.TenantDirectory, error) {
	if i.cfg.Database.SiteDatabase == "" {
		return nil, nil
	}
	conn, err := i.pool.Get(ctx, i.cfg.Database.SiteDatabase)
	if err != nil {
		return nil, err
	}
	return persistence.NewTenantRepository(conn.DB()), nil
}

// TenantResources builds the repositories and schema tooling of one tenant
// schema, creating the definition table if it is missing.
func TenantResources(ctx context.Context, db *sql.DB, tenantID string, freshness ports.FreshnessStore, uploadDir string, lockWait time.Duration) (*services.TenantResources, error) {
	defs := persistence.NewDefinitionRepository(db)
	if err := defs.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare definitions of tenant %s: %w", tenantID, err)
	}
	columns := persistence.NewColumnCache(db)
	return &services.TenantResources{
		Definitions: defs,
		Roles:       persistence.NewRoleRepository(db),
		Schema:      persistence.NewSchemaSessions(db, columns, lockWait),
		Inspector:   persistence.NewSchemaInspector(db),
		Files:       storage.NewLocalFileImporter(uploadDir, tenantID),
		Freshness:   freshness,
	}, nil
}

// ImportOptions maps the import settings onto pipeline options.
func ImportOptions(cfg *config.Config) services.ImportOptions {
	opts := services.DefaultImportOptions()
	opts.PersistConcurrency = cfg.Import.PersistConcurrency
	opts.SchemaConcurrency = cfg.Import.SchemaConcurrency
	opts.RemainingConcurrency = cfg.Import.RemainingConcurrency
	opts.FileConcurrency = cfg.Import.FileConcurrency
	opts.Retry = throttle.DeadlockRetryPolicy{
		MaxAttempts: cfg.Import.DeadlockMaxAttempts,
		Retryable:   persistence.IsDeadlock,
		Delay:       opts.Retry.Delay,
	}
	return opts
}

// NewServiceManager connects the infrastructure and wires every service.
func NewServiceManager(ctx context.Context, cfg *config.Config) (*services.ServiceManager, *Infrastructure, error) {
	infra, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	directory, err := infra.TenantDirectory(ctx)
	if err != nil {
		log.Printf("⚠️ Site database unavailable, tenant-wide updates are disabled: %v", err)
		directory = nil
	}

	sm := services.NewServiceManager(services.TenantFactoryFunc(infra.OpenTenant), directory, cfg.SystemRoles, ImportOptions(cfg))
	log.Println("🔧 Service manager initialized")
	return sm, infra, nil
}
