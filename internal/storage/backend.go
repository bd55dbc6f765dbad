package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosight/logflow/internal/config"
)

var (
	// ErrNotFound is returned by a Backend when a key has no value
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded is returned when a write does not fit the backend quota
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	// ErrCorrupt wraps payloads that could not be decoded on load
	ErrCorrupt = errors.New("storage: corrupt payload")
)

// Backend is a client-local key/value store for serialized blobs
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open builds the backend selected by cfg.Driver. The none driver returns a
// nil Backend, which the Store treats as "no durable storage".
func Open(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemory(0), nil
	case "sqlite":
		return NewSQLite(cfg.SQLite.Path)
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
