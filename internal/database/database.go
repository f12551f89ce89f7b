package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cloudsuite/cloudauth/internal/models"
)

// Config contains database connection options.
type Config struct {
	Driver string
	Path   string // SQLite database path when Driver == sqlite
	DSN    string // DSN for postgres/mysql, optional override for sqlite
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch driver {
	case "sqlite":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("database: postgres requires a dsn")
		}
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "mysql":
		if cfg.DSN == "" {
			return nil, errors.New("database: mysql requires a dsn")
		}
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

// AutoMigrate creates or updates the schema for every model the service owns.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("database: nil handle")
	}
	return db.AutoMigrate(
		&models.User{},
		&models.CacheEntry{},
	)
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared&_foreign_keys=1", nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", filepath.ToSlash(path)), nil
}
