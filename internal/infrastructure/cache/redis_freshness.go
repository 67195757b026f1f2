package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// stampScript sets the global stamp to max(now, current+1) and drops every
// per-app stamp in one round trip.
var stampScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[1])
if now <= current then now = current + 1 end
redis.call('SET', KEYS[1], now)
redis.call('DEL', KEYS[2])
return now
`)

// mobileScript returns the stamp of one app, initializing a missing one to
// max(now, global+1).
var mobileScript = redis.NewScript(`
local stamp = redis.call('HGET', KEYS[2], ARGV[1])
if stamp then return tonumber(stamp) end
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[2])
if now <= current then now = current + 1 end
redis.call('HSET', KEYS[2], ARGV[1], now)
return now
`)

// RedisFreshness shares freshness stamps between replicas. Keys are
// namespaced by tenant:
//
//	defs:<tenant>:updated   global stamp (string)
//	defs:<tenant>:mobile    per-app stamps (hash, field = app id)
type RedisFreshness struct {
	client   redis.UniversalClient
	tenantID string
	now      func() time.Time
}

func NewRedisFreshness(client redis.UniversalClient, tenantID string) *RedisFreshness {
	return &RedisFreshness{client: client, tenantID: tenantID, now: time.Now}
}

var _ ports.FreshnessStore = (*RedisFreshness)(nil)

func (r *RedisFreshness) updatedKey() string { return fmt.Sprintf("defs:%s:updated", r.tenantID) }
func (r *RedisFreshness) mobileKey() string  { return fmt.Sprintf("defs:%s:mobile", r.tenantID) }

func (r *RedisFreshness) Updated(ctx context.Context) (int64, error) {
	key := r.updatedKey()
	if err := r.client.SetNX(ctx, key, r.now().UnixMilli(), 0).Err(); err != nil {
		return 0, fmt.Errorf("failed to initialize %s: %w", key, err)
	}
	stamp, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return stamp, nil
}

func (r *RedisFreshness) MobileUpdated(ctx context.Context, appID string) (int64, error) {
	key := r.mobileKey()
	stamp, err := mobileScript.Run(ctx, r.client, []string{r.updatedKey(), key}, appID, r.now().UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s[%s]: %w", key, appID, err)
	}
	return stamp, nil
}

func (r *RedisFreshness) Stamp(ctx context.Context) error {
	stamp, err := stampScript.Run(ctx, r.client, []string{r.updatedKey(), r.mobileKey()}, r.now().UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("failed to stamp definitions of %s: %w", r.tenantID, err)
	}
	log.Printf("🕒 Definitions of tenant %s stamped at %d", r.tenantID, stamp)
	return nil
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.Printf("✅ Connected to redis at %s", addr)
	return client, nil
}
