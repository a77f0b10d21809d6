package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sloggorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/0xPexy/aletta-backend/internal/config"
)

type DB struct {
	*gorm.DB
}

// Open connects to Postgres when the URL is a postgres URL and to a SQLite
// file otherwise.
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	if cfg.IsPostgres() {
		return OpenPostgres(cfg.URL, log)
	}
	return OpenSQLite(cfg.URL, log)
}

func OpenSQLite(dsn string, log *slog.Logger) (*DB, error) {
	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	return &DB{DB: gdb}, nil
}

func OpenPostgres(dsn string, log *slog.Logger) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	return &DB{DB: gdb}, nil
}

func gormConfig(log *slog.Logger) *gorm.Config {
	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = sloggorm.New(sloggorm.WithHandler(log.With("component", "gorm").Handler()))
	} else {
		cfg.Logger = logger.Discard
	}
	return cfg
}
