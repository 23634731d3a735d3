package orm

import (
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

var errMissingDSN = errors.New("orm: dsn is required")

var openers = map[DBType]func(dsn string) gorm.Dialector{
	MySQL:      mysql.Open,
	PostgreSQL: postgres.Open,
	SQLite:     sqlite.Open,
	SQLServer:  sqlserver.Open,
}

func dialector(t DBType, dsn string) (gorm.Dialector, error) {
	open, ok := openers[t]
	if !ok {
		return nil, fmt.Errorf("orm: unsupported driver %q", t)
	}
	return open(dsn), nil
}

// New 连接数据库，按配置挂载从库与追踪插件
func New(cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DSN == "" {
		return nil, errMissingDSN
	}
	primary, err := dialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	var sqlLog gormlogger.Interface = gormlogger.Discard
	if cfg.Logger != nil {
		sqlLog = newLogger(cfg.Logger, cfg.SlowThreshold)
	}
	db, err := gorm.Open(primary, &gorm.Config{Logger: sqlLog})
	if err != nil {
		return nil, fmt.Errorf("orm: open %s: %w", cfg.Type, err)
	}

	if err := configure(db, cfg); err != nil {
		_ = Close(db)
		return nil, err
	}
	return db, nil
}

func configure(db *gorm.DB, cfg *Config) error {
	pool, err := db.DB()
	if err != nil {
		return err
	}
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if len(cfg.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
		for _, dsn := range cfg.Replicas {
			d, err := dialector(cfg.Type, dsn)
			if err != nil {
				return err
			}
			replicas = append(replicas, d)
		}
		// 从库共用主库的连接池参数
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetMaxOpenConns(cfg.MaxOpenConns).
			SetConnMaxLifetime(cfg.ConnMaxLifetime)
		if err := db.Use(resolver); err != nil {
			return fmt.Errorf("orm: register replicas: %w", err)
		}
	}

	if cfg.Tracing {
		if err := db.Use(spanPlugin{}); err != nil {
			return fmt.Errorf("orm: register tracing: %w", err)
		}
	}
	return nil
}

// Close 关闭连接池
func Close(db *gorm.DB) error {
	pool, err := db.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}
