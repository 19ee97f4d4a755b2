package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medride/internal/config"
	"medride/internal/domain/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect はDBに接続して *gorm.DB を返す。SQLログはlogに出す。
func Connect(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.StorageDriverPostgres:
		return OpenPostgres(cfg.PostgresDSN(), cfg.MaxOpenConns, log)
	case config.StorageDriverSQLite:
		return OpenSQLite(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("db: unsupported sql driver %q", cfg.Driver)
	}
}

func OpenPostgres(dsn string, maxOpenConns int, log *slog.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("db: open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// sqliteは書き込みが直列なので接続は1本にする
func OpenSQLite(path string, log *slog.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}

// テーブル作成
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

func gormConfig(log *slog.Logger) *gorm.Config {
	return &gorm.Config{
		//一意制約違反をgorm.ErrDuplicatedKeyにそろえる
		TranslateError: true,
		Logger:         newGormLogger(log),
	}
}

// readiness用
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
