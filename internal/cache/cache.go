// Package cache stores finished WAV renders by request key.
package cache

import (
	"context"
	"fmt"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Config struct {
	Driver     string        `yaml:"driver" default:"memory" validate:"oneof=memory redis none"`
	TTL        time.Duration `yaml:"ttl" default:"10m"`
	MaxEntries int           `yaml:"max_entries" default:"64" validate:"gte=0"`
	MaxBytes   int           `yaml:"max_bytes" default:"16777216" validate:"gte=0"` // per entry
	Redis      RedisConfig   `yaml:"redis"`
}

// New builds the cache named by cfg.Driver. "none" returns nil, which
// callers treat as caching disabled.
func New(ctx context.Context, cfg Config) (BytesCache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewTTLCache(cfg.MaxEntries), nil
	case "redis":
		rc := NewRedisCache(cfg.Redis)
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
