package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// ListEntry list_entries 表中的一行，同一个 list_key 按 id 递增排序
type ListEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ListKey   string    `gorm:"index;size:128;not null"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ListEntry) TableName() string { return "list_entries" }

// PostgresOption 连接 PostgreSQL 的参数
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
}

func (opt PostgresOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key != "" {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// SQLStore 把列表保存在关系数据库中
type SQLStore struct {
	db *gorm.DB
}

// OpenPostgres 连接 PostgreSQL 并建表
func OpenPostgres(opt PostgresOption) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrStore, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore 使用已打开的连接，自动迁移 list_entries 表
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&ListEntry{}); err != nil {
		return nil, fmt.Errorf("%w: migrate list_entries: %v", ErrStore, err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Append(ctx context.Context, key, value string) error {
	return s.AppendTrimmed(ctx, key, value, 0)
}

// AppendTrimmed 插入新行并删除超出 keep 的旧行，两步在同一事务内完成
func (s *SQLStore) AppendTrimmed(ctx context.Context, key, value string, keep int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ListEntry{ListKey: key, Value: value}).Error; err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}

		var boundary []uint64
		if err := tx.Model(&ListEntry{}).
			Where("list_key = ?", key).
			Order("id DESC").
			Offset(keep - 1).
			Limit(1).
			Pluck("id", &boundary).Error; err != nil {
			return err
		}
		if len(boundary) == 0 {
			return nil
		}
		return tx.Where("list_key = ? AND id < ?", key, boundary[0]).Delete(&ListEntry{}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStore, key, err)
	}
	return nil
}

func (s *SQLStore) Range(ctx context.Context, key string, start, stop int) ([]string, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&ListEntry{}).Where("list_key = ?", key).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("%w: count %s: %v", ErrStore, key, err)
	}
	lo, hi, ok := normalizeRange(int(total), start, stop)
	if !ok {
		return []string{}, nil
	}

	values := make([]string, 0, hi-lo)
	if err := db.Model(&ListEntry{}).
		Where("list_key = ?", key).
		Order("id ASC").
		Offset(lo).
		Limit(hi-lo).
		Pluck("value", &values).Error; err != nil {
		return nil, fmt.Errorf("%w: range %s: %v", ErrStore, key, err)
	}
	return values, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
