package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"go.uber.org/goleak"
)

func newRunningService(t *testing.T, s store.Store) *CoreService {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })

	config := DefaultConfig()
	config.Store.Type = "memory"
	controller := NewController(s, rand.New(rand.NewPCG(3, 5)), config.Grid.Rows, config.Grid.Cols, config.DefaultImage)

	service, err := NewCoreServiceWithStore(context.Background(), config, s, controller)
	if err != nil {
		t.Fatalf("NewCoreServiceWithStore error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = service.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		if err := service.Close(); err != nil {
			t.Errorf("Close error: %v", err)
		}
	})
	return service
}

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func TestCoreService_RevealAndSnapshot(t *testing.T) {
	ctx := context.Background()
	service := newRunningService(t, store.NewMemoryStore())

	idx, state, err := service.RevealOne(ctx)
	if err != nil {
		t.Fatalf("RevealOne error: %v", err)
	}
	if len(state.Revealed) != 1 || state.Revealed[0] != idx || state.ClickCount != 1 {
		t.Errorf("Unexpected state after reveal: revealed=%v clicks=%d", state.Revealed, state.ClickCount)
	}

	snapshot, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if len(snapshot.Covered) != 399 {
		t.Errorf("Expected 399 covered cells, got %d", len(snapshot.Covered))
	}

	state, err = service.RevealAll(ctx)
	if err != nil {
		t.Fatalf("RevealAll error: %v", err)
	}
	if !state.AllRevealed() {
		t.Error("Expected every cell revealed")
	}

	if _, _, err := service.RevealOne(ctx); err == nil {
		t.Error("Expected an error once everything is revealed")
	}

	state, err = service.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if len(state.Covered) != 400 || state.ClickCount != 0 {
		t.Errorf("Expected pristine grid after reset, got covered=%d clicks=%d", len(state.Covered), state.ClickCount)
	}
}

func TestCoreService_UploadImage(t *testing.T) {
	ctx := context.Background()
	service := newRunningService(t, store.NewMemoryStore())
	if _, err := service.RevealAll(ctx); err != nil {
		t.Fatalf("RevealAll error: %v", err)
	}

	state, err := service.UploadImage(ctx, encodeTestPNG(t, 1200, 800))
	if err != nil {
		t.Fatalf("UploadImage error: %v", err)
	}
	if len(state.Covered) != 400 || len(state.Revealed) != 0 {
		t.Errorf("Expected fully covered grid, got covered=%d revealed=%d", len(state.Covered), len(state.Revealed))
	}

	_, mime, data, ok, err := service.CurrentImage(ctx)
	if err != nil || !ok {
		t.Fatalf("CurrentImage = ok %v, err %v", ok, err)
	}
	if mime != "image/png" {
		t.Errorf("Expected image/png, got %s", mime)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stored image is not PNG: %v", err)
	}
	if cfg.Width != 600 || cfg.Height != 400 {
		t.Errorf("Expected 600x400, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCoreService_UploadImage_DecodeFailureKeepsGrid(t *testing.T) {
	ctx := context.Background()
	service := newRunningService(t, store.NewMemoryStore())
	_, before, err := service.RevealOne(ctx)
	if err != nil {
		t.Fatalf("RevealOne error: %v", err)
	}

	if _, err := service.UploadImage(ctx, []byte("plain text")); !errors.Is(err, imagescale.ErrImageDecode) {
		t.Fatalf("Expected ErrImageDecode, got %v", err)
	}

	after, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if after.ImageSource != before.ImageSource || len(after.Revealed) != 1 {
		t.Errorf("Expected grid untouched, got image=%q revealed=%d", after.ImageSource, len(after.Revealed))
	}
}

func TestCoreService_CurrentImage_Default(t *testing.T) {
	service := newRunningService(t, store.NewMemoryStore())

	source, _, _, ok, err := service.CurrentImage(context.Background())
	if err != nil {
		t.Fatalf("CurrentImage error: %v", err)
	}
	if ok || source != DefaultImageSource {
		t.Errorf("Expected default image reference, got ok=%v source=%q", ok, source)
	}
}

func TestCoreService_PersistWarning(t *testing.T) {
	ctx := context.Background()
	service := newRunningService(t, store.NewQuotaStore(store.NewMemoryStore(), 64))

	idx, state, err := service.RevealOne(ctx)
	if !IsPersistError(err) {
		t.Fatalf("Expected a persist error, got %v", err)
	}
	if idx < 0 || len(state.Revealed) != 1 {
		t.Errorf("Expected the reveal to stick, got idx=%d revealed=%d", idx, len(state.Revealed))
	}
}

func TestCoreService_StoppedLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := DefaultConfig()
	service, err := NewCoreServiceWithStore(context.Background(), config, store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewCoreServiceWithStore error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if _, err := service.Snapshot(waitCtx); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("Expected ErrLoopStopped, got %v", err)
	}
}
