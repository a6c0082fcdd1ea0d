package store

import (
	"context"
	"fmt"
)

// DefaultQuotaBytes mirrors the usual per-origin browser storage limit.
const DefaultQuotaBytes = 5 * 1024 * 1024

// QuotaStore bounds the total payload (key plus value bytes) of the wrapped
// store.
type QuotaStore struct {
	Store
	limit int
}

func NewQuotaStore(inner Store, limit int) *QuotaStore {
	if limit <= 0 {
		limit = DefaultQuotaBytes
	}
	return &QuotaStore{Store: inner, limit: limit}
}

// Usage returns the current total payload in bytes.
func (s *QuotaStore) Usage(ctx context.Context) (int, error) {
	return s.usageExcluding(ctx, "")
}

func (s *QuotaStore) Set(ctx context.Context, key, value string) error {
	used, err := s.usageExcluding(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to compute storage usage: %w", err)
	}
	need := used + len(key) + len(value)
	if need > s.limit {
		return fmt.Errorf("writing %s needs %d bytes of %d: %w", key, need, s.limit, ErrQuotaExceeded)
	}
	return s.Store.Set(ctx, key, value)
}

func (s *QuotaStore) usageExcluding(ctx context.Context, skip string) (int, error) {
	keys, err := s.Store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, k := range keys {
		if k == skip {
			continue
		}
		v, ok, err := s.Store.Get(ctx, k)
		if err != nil {
			return 0, err
		}
		if ok {
			total += len(k) + len(v)
		}
	}
	return total, nil
}
