package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/jo-hoe/goscratch/internal/backend/record"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/grid"
)

// PersistError reports that an operation changed the in-memory grid but the
// store rejected the write. The mutation is kept.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: failed to persist state: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsPersistError reports whether err only signals a failed write.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// Controller applies grid transitions and writes each result to the store.
// It is not safe for concurrent use; callers serialize access through an
// EventLoop or a single-threaded runtime.
type Controller struct {
	store        store.Store
	rng          *rand.Rand
	rows         int
	cols         int
	defaultImage string
	state        grid.State
}

func NewController(s store.Store, rng *rand.Rand, rows, cols int, defaultImage string) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Controller{
		store:        s,
		rng:          rng,
		rows:         rows,
		cols:         cols,
		defaultImage: defaultImage,
		state:        grid.Initialize(rows, cols, defaultImage, nil),
	}
}

// Load restores the grid from the store. A missing record yields the default
// grid. An unreadable record is logged and also yields the default grid; it
// stays in the store until the next write replaces it.
func (c *Controller) Load(ctx context.Context) error {
	c.state = grid.Initialize(c.rows, c.cols, c.defaultImage, nil)

	r, found, err := record.Load(ctx, c.store)
	switch {
	case errors.Is(err, record.ErrUnsupportedVersion), errors.Is(err, record.ErrMalformed):
		slog.Warn("Controller: ignoring stored record; starting from default", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("failed to load state: %w", err)
	case !found:
		return nil
	}

	image := r.SavedImage
	if image == "" {
		image = c.defaultImage
	}
	c.state = grid.Initialize(c.rows, c.cols, image, r.RevealedCells)
	c.state.ClickCount = max(r.ClickCount, 0)
	slog.Info("Controller: restored state",
		"revealed", len(c.state.Revealed),
		"total", c.state.Total(),
		"click_count", c.state.ClickCount)
	return nil
}

// State returns a copy of the current grid.
func (c *Controller) State() grid.State {
	return c.state.Clone()
}

// RevealOne uncovers one random covered cell and returns its index.
// grid.ErrAllRevealed leaves everything untouched.
func (c *Controller) RevealOne(ctx context.Context) (int, error) {
	next, idx, err := grid.RevealRandom(c.state, c.rng)
	if err != nil {
		return -1, err
	}
	c.state = next
	return idx, c.save(ctx, "reveal")
}

func (c *Controller) RevealAll(ctx context.Context) error {
	c.state = grid.RevealAll(c.state)
	return c.save(ctx, "reveal all")
}

// Reset restores the default grid and clears the store.
func (c *Controller) Reset(ctx context.Context) error {
	c.state = grid.Reset(c.state, c.defaultImage)
	if err := c.store.Clear(ctx); err != nil {
		slog.Warn("Controller: failed to clear store", "error", err)
		return &PersistError{Op: "reset", Err: err}
	}
	return nil
}

// LoadImage shows source, an already scaled image reference, on a fully
// covered grid.
func (c *Controller) LoadImage(ctx context.Context, source string) error {
	c.state = grid.LoadImage(c.state, source)
	return c.save(ctx, "load image")
}

func (c *Controller) save(ctx context.Context, op string) error {
	if err := record.Save(ctx, c.store, record.FromState(c.state)); err != nil {
		slog.Warn("Controller: failed to persist state", "op", op, "error", err)
		return &PersistError{Op: op, Err: err}
	}
	return nil
}
