package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/grid"
)

const loopQueueSize = 64

// CoreService owns the single scratch card served by the binders. Every
// controller call is funneled through one EventLoop.
type CoreService struct {
	config     *ServiceConfig
	store      store.Store
	scaler     *imagescale.Scaler
	controller *Controller
	loop       *EventLoop
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	s, err := getStore(ctx, config)
	if err != nil {
		return nil, err
	}
	service, err := NewCoreServiceWithStore(ctx, config, s, nil)
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			slog.Error("failed to close store", "error", cerr)
		}
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWithStore wires the service around an existing store. A nil
// controller falls back to one with a randomly seeded generator.
func NewCoreServiceWithStore(ctx context.Context, config *ServiceConfig, s store.Store, controller *Controller) (*CoreService, error) {
	scaler, err := imagescale.NewScaler(config.Image.Commands)
	if err != nil {
		return nil, err
	}
	if controller == nil {
		controller = NewController(s, nil, config.Grid.Rows, config.Grid.Cols, config.DefaultImage)
	}
	if err := controller.Load(ctx); err != nil {
		return nil, err
	}
	return &CoreService{
		config:     config,
		store:      s,
		scaler:     scaler,
		controller: controller,
		loop:       NewEventLoop(loopQueueSize),
	}, nil
}

// Run processes requests until ctx is done.
func (service *CoreService) Run(ctx context.Context) error {
	return service.loop.Run(ctx)
}

func (service *CoreService) Snapshot(ctx context.Context) (grid.State, error) {
	_, state, err := service.do(ctx, func(context.Context) (int, error) { return -1, nil })
	return state, err
}

// RevealOne returns the index of the newly uncovered cell along with the new
// state. A *PersistError still comes with a valid index and state.
func (service *CoreService) RevealOne(ctx context.Context) (int, grid.State, error) {
	return service.do(ctx, service.controller.RevealOne)
}

func (service *CoreService) RevealAll(ctx context.Context) (grid.State, error) {
	_, state, err := service.do(ctx, withoutIndex(service.controller.RevealAll))
	return state, err
}

func (service *CoreService) Reset(ctx context.Context) (grid.State, error) {
	_, state, err := service.do(ctx, withoutIndex(service.controller.Reset))
	return state, err
}

// UploadImage scales data off the loop and then shows it on a fully covered
// grid. Undecodable input leaves the grid untouched and returns
// imagescale.ErrImageDecode.
func (service *CoreService) UploadImage(ctx context.Context, data []byte) (grid.State, error) {
	if limit := service.config.Image.MaxUploadBytes; limit > 0 && int64(len(data)) > limit {
		return grid.State{}, fmt.Errorf("%w: upload of %d bytes exceeds %d", imagescale.ErrImageDecode, len(data), limit)
	}

	scaled, err := imagescale.Wait(ctx, service.scaler.ScaleAsync(data))
	if err != nil {
		return grid.State{}, err
	}
	slog.Info("CoreService: image scaled",
		"width", scaled.Width,
		"height", scaled.Height,
		"png_size_bytes", len(scaled.PNG))

	_, state, err := service.do(ctx, func(ctx context.Context) (int, error) {
		return -1, service.controller.LoadImage(ctx, scaled.DataURL)
	})
	return state, err
}

// CurrentImage returns the bytes of an inline current image. For an image
// referenced by URL, ok is false and source holds that URL.
func (service *CoreService) CurrentImage(ctx context.Context) (source, mime string, data []byte, ok bool, err error) {
	state, err := service.Snapshot(ctx)
	if err != nil {
		return "", "", nil, false, err
	}
	if !imagescale.IsDataURL(state.ImageSource) {
		return state.ImageSource, "", nil, false, nil
	}
	mime, data, err = imagescale.ParseDataURL(state.ImageSource)
	if err != nil {
		return state.ImageSource, "", nil, false, err
	}
	return state.ImageSource, mime, data, true, nil
}

func (service *CoreService) Close() error {
	return service.store.Close()
}

type outcome struct {
	index int
	state grid.State
	err   error
}

// do runs fn on the loop and captures the resulting state in the same turn.
// fn gets a context that is not cancelled with the request, so a mutation
// that has started is always persisted.
func (service *CoreService) do(ctx context.Context, fn func(context.Context) (int, error)) (int, grid.State, error) {
	runCtx := context.WithoutCancel(ctx)
	o, err := Submit(ctx, service.loop, func() outcome {
		idx, err := fn(runCtx)
		return outcome{index: idx, state: service.controller.State(), err: err}
	})
	if err != nil {
		return -1, grid.State{}, err
	}
	return o.index, o.state, o.err
}

func withoutIndex(fn func(context.Context) error) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		return -1, fn(ctx)
	}
}

func getStore(ctx context.Context, config *ServiceConfig) (store.Store, error) {
	s, err := store.NewStore(ctx, config.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	slog.Info("store initialized successfully", "type", config.Store.Type)
	return s, nil
}
