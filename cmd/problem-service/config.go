package main

import (
	"fmt"
	"time"

	"itsm/internal/auth"
	"itsm/internal/authz"
	"itsm/internal/common/cache"
	"itsm/internal/common/db"
	"itsm/internal/common/mq"
	"itsm/pkg/utils/logger"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultShutdownTimeout = 10 * time.Second

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"ITSM_HTTP_ADDR" env-default:"0.0.0.0:8083"`
	ReadTimeout    time.Duration `yaml:"readTimeout" env-default:"5s"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env-default:"10s"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" env-default:"60s"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env-default:"8s"`
}

// ProblemConfig tunes the problem workflow.
type ProblemConfig struct {
	QueryTimeout time.Duration `yaml:"queryTimeout" env-default:"5s"`
}

// AuthzConfig is the role table. An empty table falls back to the built-in one.
type AuthzConfig struct {
	Roles            map[string][]string `yaml:"roles"`
	ResponsibleRoles []string            `yaml:"responsibleRoles"`
}

// AppConfig holds the problem-service configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database db.Config         `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Kafka    mq.KafkaConfig    `yaml:"kafka"`
	Auth     auth.Config       `yaml:"auth"`
	Authz    AuthzConfig       `yaml:"authz"`
	Problem  ProblemConfig     `yaml:"problem"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if len(cfg.Authz.ResponsibleRoles) == 0 {
		cfg.Authz.ResponsibleRoles = append([]string(nil), authz.ResponsibleRoles...)
	}
	return &cfg, nil
}
