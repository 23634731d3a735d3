package queue

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tokmz/scatter/pkg/chat"
	"github.com/tokmz/scatter/pkg/config"
)

// 队列驱动
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverDatabase = "database"
)

// New 根据配置创建离线队列
// redis 驱动需要 client，database 驱动需要 db，其余参数可为空
func New(s config.UndeliveredSettings, client redis.UniversalClient, db *gorm.DB, migrate bool) (chat.UndeliveredQueue, error) {
	switch s.Driver {
	case DriverMemory, "":
		return chat.NewMemoryQueue(s.MaxPerUser), nil
	case DriverRedis:
		if client == nil {
			return nil, ErrStore.WithMessage("redis driver requires a redis client")
		}
		return NewRedisQueue(client,
			WithKeyPrefix(s.KeyPrefix),
			WithMaxPerUser(s.MaxPerUser),
			WithTTL(s.TTL),
		), nil
	case DriverDatabase:
		if db == nil {
			return nil, ErrStore.WithMessage("database driver requires a database")
		}
		return NewDatabaseQueue(db, s.MaxPerUser, migrate)
	default:
		return nil, ErrStore.WithMessage("unknown undelivered queue driver: " + s.Driver)
	}
}
