package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jo-hoe/goscratch/internal/backend/record"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/grid"
)

const testDefaultImage = "/assets/default.svg"

func newTestController(t *testing.T, s store.Store) *Controller {
	t.Helper()
	c := NewController(s, rand.New(rand.NewPCG(7, 11)), grid.DefaultRows, grid.DefaultCols, testDefaultImage)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return c
}

// countingStore records how often each mutating call reaches the store.
type countingStore struct {
	store.Store
	sets, clears, removes int
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.sets++
	return s.Store.Set(ctx, key, value)
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.clears++
	return s.Store.Clear(ctx)
}

func (s *countingStore) Remove(ctx context.Context, key string) error {
	s.removes++
	return s.Store.Remove(ctx, key)
}

func TestController_Load_Default(t *testing.T) {
	c := newTestController(t, store.NewMemoryStore())
	st := c.State()

	if st.ImageSource != testDefaultImage {
		t.Errorf("Expected default image, got %q", st.ImageSource)
	}
	if len(st.Covered) != 400 || len(st.Revealed) != 0 || st.ClickCount != 0 {
		t.Errorf("Expected 400 covered cells, got covered=%d revealed=%d clicks=%d",
			len(st.Covered), len(st.Revealed), st.ClickCount)
	}
}

func TestController_RevealOne_Persists(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{Store: store.NewMemoryStore()}
	c := newTestController(t, s)

	idx, err := c.RevealOne(ctx)
	if err != nil {
		t.Fatalf("RevealOne error: %v", err)
	}
	if idx < 0 || idx >= 400 {
		t.Fatalf("index %d out of range", idx)
	}
	if s.sets != 1 {
		t.Errorf("Expected exactly one write, got %d", s.sets)
	}

	r, found, err := record.Load(ctx, s)
	if err != nil || !found {
		t.Fatalf("record.Load = found %v, err %v", found, err)
	}
	want := record.Record{Version: record.CurrentVersion, SavedImage: testDefaultImage, RevealedCells: []int{idx}, ClickCount: 1}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestController_RevealOne_AllRevealed(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{Store: store.NewMemoryStore()}
	c := newTestController(t, s)

	for i := range 400 {
		if _, err := c.RevealOne(ctx); err != nil {
			t.Fatalf("RevealOne %d error: %v", i+1, err)
		}
	}
	before := c.State()
	writes := s.sets

	idx, err := c.RevealOne(ctx)
	if !errors.Is(err, grid.ErrAllRevealed) {
		t.Fatalf("Expected ErrAllRevealed, got %v", err)
	}
	if idx != -1 {
		t.Errorf("Expected index -1, got %d", idx)
	}
	if s.sets != writes {
		t.Error("Expected no write when nothing is left to reveal")
	}
	if diff := cmp.Diff(before, c.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	if before.ClickCount != 400 {
		t.Errorf("Expected click count 400, got %d", before.ClickCount)
	}
}

func TestController_RevealAll_KeepsClickCount(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewMemoryStore())
	for range 3 {
		if _, err := c.RevealOne(ctx); err != nil {
			t.Fatalf("RevealOne error: %v", err)
		}
	}

	if err := c.RevealAll(ctx); err != nil {
		t.Fatalf("RevealAll error: %v", err)
	}
	st := c.State()
	if !st.AllRevealed() || st.ClickCount != 3 {
		t.Errorf("Expected all revealed with 3 clicks, got revealed=%d clicks=%d", len(st.Revealed), st.ClickCount)
	}
}

func TestController_Reset_ClearsStore(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{Store: store.NewMemoryStore()}
	c := newTestController(t, s)
	if err := c.LoadImage(ctx, "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("LoadImage error: %v", err)
	}
	if _, err := c.RevealOne(ctx); err != nil {
		t.Fatalf("RevealOne error: %v", err)
	}
	sets := s.sets

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if s.clears != 1 || s.sets != sets {
		t.Errorf("Expected one Clear and no Set, got clears=%d extra sets=%d", s.clears, s.sets-sets)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty store, got %v", keys)
	}

	st := c.State()
	if st.ImageSource != testDefaultImage || len(st.Revealed) != 0 || st.ClickCount != 0 {
		t.Errorf("Expected default state after reset, got image=%q revealed=%d clicks=%d",
			st.ImageSource, len(st.Revealed), st.ClickCount)
	}

	// a reload after reset sees nothing stored
	reloaded := newTestController(t, s)
	if diff := cmp.Diff(st, reloaded.State()); diff != "" {
		t.Errorf("reloaded state mismatch (-want +got):\n%s", diff)
	}
}

func TestController_LoadImage_CoversGrid(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewMemoryStore())
	if err := c.RevealAll(ctx); err != nil {
		t.Fatalf("RevealAll error: %v", err)
	}

	if err := c.LoadImage(ctx, "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("LoadImage error: %v", err)
	}
	st := c.State()
	if st.ImageSource != "data:image/png;base64,AAAA" {
		t.Errorf("Expected new image, got %q", st.ImageSource)
	}
	if len(st.Covered) != 400 || len(st.Revealed) != 0 || st.ClickCount != 0 {
		t.Errorf("Expected fully covered grid, got covered=%d revealed=%d clicks=%d",
			len(st.Covered), len(st.Revealed), st.ClickCount)
	}
}

func TestController_RestoresAcrossInstances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	first := newTestController(t, s)
	for range 5 {
		if _, err := first.RevealOne(ctx); err != nil {
			t.Fatalf("RevealOne error: %v", err)
		}
	}

	want, got := first.State(), newTestController(t, s).State()
	// covered order is not persisted
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b int) bool { return a < b })); diff != "" {
		t.Errorf("restored state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Revealed, got.Revealed); diff != "" {
		t.Errorf("revealed order mismatch (-want +got):\n%s", diff)
	}
}

func TestController_QuotaFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	s := store.NewQuotaStore(store.NewMemoryStore(), 256)
	c := newTestController(t, s)

	big := "data:image/png;base64," + strings.Repeat("A", 1024)
	err := c.LoadImage(ctx, big)

	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PersistError, got %v", err)
	}
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded in chain, got %v", err)
	}
	if pe.Op != "load image" {
		t.Errorf("Expected op 'load image', got %q", pe.Op)
	}
	if got := c.State().ImageSource; got != big {
		t.Error("Expected the in-memory image to be replaced despite the failed write")
	}
	if _, found, _ := record.Load(ctx, s); found {
		t.Error("Expected nothing stored after the rejected write")
	}
}

func TestController_Load_FallsBackOnBrokenRecord(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", "{not json"},
		{"future version", `{"version":9,"savedImage":"x","revealedCells":[1],"clickCount":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemoryStore()
			if err := s.Set(ctx, record.Key, tt.raw); err != nil {
				t.Fatalf("Set error: %v", err)
			}

			c := newTestController(t, s)
			st := c.State()
			if st.ImageSource != testDefaultImage || len(st.Revealed) != 0 {
				t.Errorf("Expected default state, got image=%q revealed=%d", st.ImageSource, len(st.Revealed))
			}
			raw, ok, _ := s.Get(ctx, record.Key)
			if !ok || raw != tt.raw {
				t.Error("Expected the broken record to stay in place until the next write")
			}
		})
	}
}

func TestController_Load_MigratesLegacyKeys(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for k, v := range map[string]string{
		record.LegacyImageKey:      "data:image/png;base64,AAAA",
		record.LegacyRevealedKey:   "[3,1,4]",
		record.LegacyClickCountKey: "3",
	} {
		if err := s.Set(ctx, k, v); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	st := newTestController(t, s).State()
	if diff := cmp.Diff([]int{3, 1, 4}, st.Revealed); diff != "" {
		t.Errorf("revealed mismatch (-want +got):\n%s", diff)
	}
	if st.ClickCount != 3 || st.ImageSource != "data:image/png;base64,AAAA" {
		t.Errorf("Expected migrated image and click count, got %q / %d", st.ImageSource, st.ClickCount)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if diff := cmp.Diff([]string{record.Key}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestController_MigratedLegacyImageLeavesRoomToSave(t *testing.T) {
	ctx := context.Background()
	s := store.NewQuotaStore(store.NewMemoryStore(), 1000)
	image := "data:image/png;base64," + strings.Repeat("A", 600)
	for k, v := range map[string]string{
		record.LegacyImageKey:      image,
		record.LegacyRevealedKey:   "[3,1,4]",
		record.LegacyClickCountKey: "3",
	} {
		if err := s.Set(ctx, k, v); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	c := newTestController(t, s)
	if got := c.State().ImageSource; got != image {
		t.Fatalf("Expected the migrated image, got %d bytes", len(got))
	}
	for i := 0; i < 3; i++ {
		if _, err := c.RevealOne(ctx); err != nil {
			t.Fatalf("RevealOne #%d error: %v", i+1, err)
		}
	}

	r, found, err := record.Load(ctx, s)
	if err != nil || !found {
		t.Fatalf("record.Load = found %v, err %v", found, err)
	}
	if r.ClickCount != 6 || len(r.RevealedCells) != 6 {
		t.Errorf("Expected six persisted reveals, got clicks=%d revealed=%d", r.ClickCount, len(r.RevealedCells))
	}
	keys, _ := s.Keys(ctx)
	if diff := cmp.Diff([]string{record.Key}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}
