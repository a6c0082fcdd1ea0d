package grid

import (
	"errors"
	"math/rand/v2"
	"slices"
)

const (
	DefaultRows = 20
	DefaultCols = 20
)

// ErrAllRevealed is returned by RevealRandom when no covered cell is left.
var ErrAllRevealed = errors.New("all cells have been revealed")

// State is the complete reveal progress of one grid.
// Covered and Revealed partition 0..Rows*Cols-1.
type State struct {
	Rows        int
	Cols        int
	Covered     []int
	Revealed    []int
	ImageSource string
	ClickCount  int
}

// Cell is the render view of a single grid unit.
type Cell struct {
	Index   int
	Row     int
	Col     int
	Covered bool
}

// Initialize builds a grid where every index of previouslyRevealed is revealed
// (in the given order) and all other cells are covered. Out-of-range and
// repeated indices are dropped.
func Initialize(rows, cols int, imageSource string, previouslyRevealed []int) State {
	total := rows * cols
	if total < 0 {
		total = 0
	}

	seen := make([]bool, total)
	revealed := make([]int, 0, len(previouslyRevealed))
	for _, idx := range previouslyRevealed {
		if idx < 0 || idx >= total || seen[idx] {
			continue
		}
		seen[idx] = true
		revealed = append(revealed, idx)
	}

	covered := make([]int, 0, total-len(revealed))
	for i := 0; i < total; i++ {
		if !seen[i] {
			covered = append(covered, i)
		}
	}

	return State{
		Rows:        rows,
		Cols:        cols,
		Covered:     covered,
		Revealed:    revealed,
		ImageSource: imageSource,
	}
}

// RevealRandom moves one uniformly chosen covered cell to the revealed list
// and counts the click. The returned index is the cell to redraw.
func RevealRandom(s State, rng *rand.Rand) (State, int, error) {
	if len(s.Covered) == 0 {
		return s, -1, ErrAllRevealed
	}

	next := s.Clone()
	pick := rng.IntN(len(next.Covered))
	idx := next.Covered[pick]

	last := len(next.Covered) - 1
	next.Covered[pick] = next.Covered[last]
	next.Covered = next.Covered[:last]

	next.Revealed = append(next.Revealed, idx)
	next.ClickCount++
	return next, idx, nil
}

// RevealAll uncovers every cell. The click count is left untouched.
func RevealAll(s State) State {
	total := s.Total()
	revealed := make([]int, total)
	for i := range revealed {
		revealed[i] = i
	}
	return State{
		Rows:        s.Rows,
		Cols:        s.Cols,
		Covered:     []int{},
		Revealed:    revealed,
		ImageSource: s.ImageSource,
		ClickCount:  s.ClickCount,
	}
}

// Reset returns the pristine grid showing defaultImage.
func Reset(s State, defaultImage string) State {
	return Initialize(s.Rows, s.Cols, defaultImage, nil)
}

// LoadImage swaps the background and restarts the reveal progress.
func LoadImage(s State, imageSource string) State {
	return Initialize(s.Rows, s.Cols, imageSource, nil)
}

func (s State) Total() int {
	return s.Rows * s.Cols
}

// AllRevealed reports whether no covered cell is left.
func (s State) AllRevealed() bool {
	return len(s.Covered) == 0
}

// Clone returns a deep copy so callers can never alias the owner's slices.
func (s State) Clone() State {
	c := s
	c.Covered = slices.Clone(s.Covered)
	c.Revealed = slices.Clone(s.Revealed)
	if c.Covered == nil {
		c.Covered = []int{}
	}
	if c.Revealed == nil {
		c.Revealed = []int{}
	}
	return c
}

// Cell returns the render view of the cell at idx.
func (s State) Cell(idx int) Cell {
	c := Cell{Index: idx, Covered: !slices.Contains(s.Revealed, idx)}
	if s.Cols > 0 {
		c.Row = idx / s.Cols
		c.Col = idx % s.Cols
	}
	return c
}

// Cells returns every cell in row-major order.
func (s State) Cells() []Cell {
	total := s.Total()
	revealed := make([]bool, total)
	for _, idx := range s.Revealed {
		if idx >= 0 && idx < total {
			revealed[idx] = true
		}
	}

	cells := make([]Cell, total)
	for i := range cells {
		cells[i] = Cell{Index: i, Covered: !revealed[i]}
		if s.Cols > 0 {
			cells[i].Row = i / s.Cols
			cells[i].Col = i % s.Cols
		}
	}
	return cells
}
