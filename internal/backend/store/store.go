package store

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded signals that a write would push the stored payload
	// over the configured capacity. The previous value is kept.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is a durable string key-value mapping scoped to one widget.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear deletes every key in the store's scope.
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
