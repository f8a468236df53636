package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultBusyTimeout = 5 * time.Second

// Config 为 SQLite 存储配置。
type Config struct {
	Path        string        `mapstructure:"path"`
	EnableWAL   bool          `mapstructure:"enable_wal"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// Storage 保存会话快照、线索与审计记录。
// 路由的各个会话与 retention 任务会并发写入，依赖 busy_timeout 排队。
type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open 打开数据库并完成迁移。
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}

	// gorm 默认把慢查询打到 stdout，会混进控制台聊天输出
	db, err := gorm.Open(sqlite.Open(dsn(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	s := &Storage{db: db, sqlDB: sqlDB}

	if cfg.EnableWAL {
		if err := s.db.WithContext(ctx).Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&SessionSnapshot{}, &Lead{}, &AuditRecord{}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping 供 health 命令检查数据库连通性。
func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return errors.New("storage not initialized")
	}
	return s.sqlDB.PingContext(ctx)
}

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("not found")

func dsn(cfg Config) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
}
