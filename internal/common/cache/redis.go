package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for Redis client.
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ITSM_REDIS_ADDR"`
	Password     string        `yaml:"password" env:"ITSM_REDIS_PASSWORD"`
	DB           int           `yaml:"db" env-default:"0"`
	MaxRetries   int           `yaml:"maxRetries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dialTimeout" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"readTimeout" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env-default:"3s"`
	PoolSize     int           `yaml:"poolSize" env-default:"20"`
	MinIdleConns int           `yaml:"minIdleConns" env-default:"2"`

	// CatalogTTL bounds how long reference catalogs stay cached.
	CatalogTTL time.Duration `yaml:"catalogTTL" env-default:"10m"`
	// EmptyTTL is used when a catalog query came back empty.
	EmptyTTL time.Duration `yaml:"emptyTTL" env-default:"30s"`
}

// withDefaults fills tuning fields left zero by callers that bypass cleanenv.
func (c RedisConfig) withDefaults() RedisConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = 10 * time.Minute
	}
	if c.EmptyTTL <= 0 {
		c.EmptyTTL = 30 * time.Second
	}
	return c
}

// RedisCache implements Cache using go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache instance and verifies the connection.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}
	config = config.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient creates a Redis cache from an existing redis.Client.
func NewRedisCacheWithClient(client *redis.Client) (*RedisCache, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
