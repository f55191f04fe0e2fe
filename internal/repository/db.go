package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"shorturl-go/internal/config"
	"shorturl-go/pkg/logging"
)

// 支持的数据库驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Dialector 按驱动名称选择 gorm 方言
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite, "":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func isMemorySQLite(driver, dsn string) bool {
	return (driver == DriverSQLite || driver == "") && strings.Contains(dsn, ":memory:")
}

// OpenDB 打开数据库连接池，注入 zap 日志并统一使用 UTC 时间。
// 不执行迁移，迁移由 RelationalAdapter.Connect 或 migrate 命令负责。
func OpenDB(cfg config.DBConfig, logger *zap.Logger, level zapcore.Level) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logging.NewGormLogger(logger, logging.ToGormLogLevel(level)), // 注入 logger 并转换级别
		NowFunc: nowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 内存 SQLite 每个连接都是独立的库，只能使用单连接且不能回收
	if isMemorySQLite(cfg.Driver, cfg.DSN) {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return db, nil
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}
