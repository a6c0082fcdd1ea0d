package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	if err := s.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRedis(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	redisStore, _ := newTestRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newTestSQLite(t),
		"redis":  redisStore,
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
			}

			if err := s.Set(ctx, "savedImage", "data:image/png;base64,AAAA"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if err := s.Set(ctx, "clickCount", "3"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if err := s.Set(ctx, "clickCount", "4"); err != nil {
				t.Fatalf("Set (overwrite) error: %v", err)
			}

			v, ok, err := s.Get(ctx, "clickCount")
			if err != nil || !ok || v != "4" {
				t.Fatalf("Get(clickCount) = %q, %v, %v; want \"4\", true, nil", v, ok, err)
			}

			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys error: %v", err)
			}
			if diff := cmp.Diff([]string{"clickCount", "savedImage"}, sortedCopy(keys)); diff != "" {
				t.Errorf("Keys mismatch (-want +got):\n%s", diff)
			}

			if err := s.Remove(ctx, "clickCount"); err != nil {
				t.Fatalf("Remove error: %v", err)
			}
			if err := s.Remove(ctx, "clickCount"); err != nil {
				t.Fatalf("Remove of absent key error: %v", err)
			}
			if _, ok, _ := s.Get(ctx, "clickCount"); ok {
				t.Error("expected clickCount to be removed")
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear error: %v", err)
			}
			keys, err = s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys error: %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("expected no keys after Clear, got %v", keys)
			}
		})
	}
}

func TestRedisStore_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)

	if err := mr.Set("other:savedImage", "keep"); err != nil {
		t.Fatalf("miniredis Set error: %v", err)
	}
	if err := s.Set(ctx, "savedImage", "drop"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if !mr.Exists("test:savedImage") {
		t.Fatal("expected namespaced key test:savedImage")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if mr.Exists("test:savedImage") {
		t.Error("expected namespaced key to be cleared")
	}
	if got, err := mr.Get("other:savedImage"); err != nil || got != "keep" {
		t.Errorf("foreign key = %q, %v; want \"keep\"", got, err)
	}
}

func TestQuotaStore_RejectsOversizeWrite(t *testing.T) {
	ctx := context.Background()
	s := NewQuotaStore(NewMemoryStore(), 32)

	if err := s.Set(ctx, "k", "small"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	err := s.Set(ctx, "k", strings.Repeat("x", 64))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set error = %v, want ErrQuotaExceeded", err)
	}

	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "small" {
		t.Errorf("Get(k) = %q, %v, %v; want previous value kept", v, ok, err)
	}
}

func TestQuotaStore_OverwriteDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	s := NewQuotaStore(NewMemoryStore(), 20)

	// 1 + 15 bytes each time; counting the old value would exceed 20.
	for i := 0; i < 3; i++ {
		if err := s.Set(ctx, "k", strings.Repeat("y", 15)); err != nil {
			t.Fatalf("Set #%d error: %v", i, err)
		}
	}
	used, err := s.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage error: %v", err)
	}
	if used != 16 {
		t.Errorf("Usage = %d, want 16", used)
	}
}

func TestNewStore_Types(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"memory", Options{Type: "memory"}, false},
		{"default is memory", Options{}, false},
		{"sqlite", Options{Type: "sqlite", ConnectionString: ":memory:"}, false},
		{"redis", Options{Type: "redis", ConnectionString: "redis://" + mr.Addr()}, false},
		{"browser outside wasm", Options{Type: "browser"}, true},
		{"unknown", Options{Type: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(ctx, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStore error: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })

			if err := s.Set(ctx, "probe", "1"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if _, ok := s.(*QuotaStore); !ok {
				t.Errorf("expected quota-bounded store, got %T", s)
			}
		})
	}
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
