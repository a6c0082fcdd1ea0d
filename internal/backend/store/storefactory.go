package store

import (
	"context"
	"fmt"
	"log/slog"
)

const DefaultNamespace = "goscratch"

// Options selects and configures a backend.
type Options struct {
	Type             string
	ConnectionString string
	Namespace        string
	QuotaBytes       int
}

// NewStore opens the backend named by opts.Type and bounds it with the
// configured quota.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var inner Store
	switch opts.Type {
	case "", "memory":
		inner = NewMemoryStore()
	case "sqlite":
		sqliteStore, err := NewSQLiteStore(opts.ConnectionString)
		if err != nil {
			return nil, err
		}
		// Ensure schema exists (idempotent), important for in-memory SQLite
		slog.Info("initializing store schema (ensuring tables exist)")
		if err := sqliteStore.CreateSchema(ctx); err != nil {
			_ = sqliteStore.Close()
			return nil, fmt.Errorf("failed to create store schema: %w", err)
		}
		inner = sqliteStore
	case "redis":
		redisStore, err := NewRedisStore(opts.ConnectionString, namespace)
		if err != nil {
			return nil, err
		}
		if err := redisStore.Ping(ctx); err != nil {
			_ = redisStore.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		inner = redisStore
	case "browser":
		browserStore, err := NewBrowserStore(namespace)
		if err != nil {
			return nil, err
		}
		inner = browserStore
	default:
		return nil, fmt.Errorf("unsupported store type: %s", opts.Type)
	}

	slog.Info("store initialized", "type", opts.Type, "namespace", namespace, "quota_bytes", opts.QuotaBytes)
	return NewQuotaStore(inner, opts.QuotaBytes), nil
}
