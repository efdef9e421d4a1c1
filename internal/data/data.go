// Package data provides data access layer implementations.
// It holds the channel transports, the queue persistence backends and the
// delivery audit trail.
package data

import (
	"context"

	"RelayLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewQueueStore,
	NewDeliveryAuditLogger,
	NewLogStatusNotifier,
	NewWebSocketTransport,
	NewHTTPCallTransport,
)

// Data contains all data layer dependencies.
type Data struct {
	// redisClient backs the Redis queue store
	redisClient *redis.Client
	// db backs the MySQL queue store and the delivery audit trail
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Either backend may be absent; the queue store selector decides which one
// actually persists operations.
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, Redis-backed queue persistence will be unavailable")
	}
	if db == nil {
		helper.Warn("MySQL client is nil, MySQL-backed persistence and audit trail will be unavailable")
	}

	d := &Data{
		redisClient: rdb,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanup is handled by their own cleanup functions
		// which are called automatically by Wire
	}

	return d, cleanup, nil
}

// GetRedisClient returns the Redis client for advanced operations.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// GetDB returns the GORM handle for advanced operations.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}

// Ping verifies backing store reachability for the health view. Backends
// that were never configured report as disabled rather than unreachable.
func (d *Data) Ping(ctx context.Context) map[string]string {
	result := make(map[string]string, 2)

	if d.redisClient != nil {
		if err := d.redisClient.Ping(ctx).Err(); err != nil {
			result["redis"] = "unreachable"
		} else {
			result["redis"] = "ok"
		}
	} else {
		result["redis"] = "disabled"
	}

	if d.db != nil {
		sqlDB, err := d.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			result["mysql"] = "unreachable"
		} else {
			result["mysql"] = "ok"
		}
	} else {
		result["mysql"] = "disabled"
	}

	return result
}
