package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Config holds the connection and pool settings of the relational store.
type Config struct {
	// Driver is "mysql" or "sqlite".
	Driver string `yaml:"driver" env:"ITSM_DB_DRIVER" env-default:"mysql"`

	// DSN is the data source name.
	// MySQL: "user:password@tcp(host:port)/itsm?parseTime=true&loc=UTC"
	// SQLite: a file path, e.g. "data/itsm.db"
	DSN string `yaml:"dsn" env:"ITSM_DB_DSN"`

	MaxOpenConnections int           `yaml:"maxOpenConnections" env-default:"25"`
	MaxIdleConnections int           `yaml:"maxIdleConnections" env-default:"5"`
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime" env-default:"5m"`
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime" env-default:"10m"`

	// Migrate applies the embedded schema migrations on startup.
	Migrate bool `yaml:"migrate" env:"ITSM_DB_MIGRATE" env-default:"true"`
}

// DefaultConfig returns the default pool configuration for MySQL.
func DefaultConfig() Config {
	return Config{
		Driver:             string(DialectMySQL),
		MaxOpenConnections: 25,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    5 * time.Minute,
		ConnMaxIdleTime:    10 * time.Minute,
	}
}

// Open connects to the configured backend.
func Open(cfg Config) (*SQLDatabase, error) {
	switch Dialect(cfg.Driver) {
	case DialectMySQL, "":
		return NewMySQL(cfg)
	case DialectSQLite:
		return NewSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewMySQL opens a pooled MySQL connection.
func NewMySQL(cfg Config) (*SQLDatabase, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN cannot be empty")
	}
	defaults := DefaultConfig()
	if cfg.MaxOpenConnections == 0 {
		cfg.MaxOpenConnections = defaults.MaxOpenConnections
	}
	if cfg.MaxIdleConnections == 0 {
		cfg.MaxIdleConnections = defaults.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}

	sqlDB, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	database, err := NewWithDB(sqlDB, DialectMySQL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return database, nil
}

// NewSQLite opens an embedded SQLite database with foreign keys enforced.
// SQLite allows one writer, so the pool is pinned to a single connection.
func NewSQLite(path string) (*SQLDatabase, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	database, err := NewWithDB(sqlDB, DialectSQLite)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return database, nil
}
