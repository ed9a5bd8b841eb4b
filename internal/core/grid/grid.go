package grid

import "fmt"

// Cell enumerates the value types a layer grid may hold.
type Cell interface {
	~float32 | ~uint8 | ~uint16 | ~bool
}

// Grid stores a dense 2D grid in row-major order.
type Grid[T Cell] struct {
	W, H int
	data []T
}

// New allocates a zeroed grid. Non-positive dimensions are clamped to 1.
func New[T Cell](w, h int) *Grid[T] {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return &Grid[T]{W: w, H: h, data: make([]T, w*h)}
}

// FromSlice wraps data as a w×h grid. The slice is copied.
func FromSlice[T Cell](w, h int, data []T) (*Grid[T], error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", w, h)
	}
	if len(data) != w*h {
		return nil, fmt.Errorf("grid %dx%d needs %d cells, got %d", w, h, w*h, len(data))
	}
	g := &Grid[T]{W: w, H: h, data: make([]T, len(data))}
	copy(g.data, data)
	return g, nil
}

// Cells exposes the backing slice so callers can read/write values directly.
func (g *Grid[T]) Cells() []T { return g.data }

// Len returns the number of cells.
func (g *Grid[T]) Len() int { return len(g.data) }

// Index returns the linear slice index for coordinates (x, y).
func (g *Grid[T]) Index(x, y int) int { return y*g.W + x }

// In reports whether (x, y) lies inside the grid.
func (g *Grid[T]) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.W && y < g.H
}

// At returns the value at (x, y). Coordinates must be in range.
func (g *Grid[T]) At(x, y int) T { return g.data[y*g.W+x] }

// Set writes v at (x, y).
func (g *Grid[T]) Set(x, y int, v T) { g.data[y*g.W+x] = v }

// Wrap applies toroidal wrapping to the provided coordinates.
func (g *Grid[T]) Wrap(x, y int) (int, int) {
	x = (x%g.W + g.W) % g.W
	y = (y%g.H + g.H) % g.H
	return x, y
}

// SameSize reports whether both grids share dimensions.
func (g *Grid[T]) SameSize(w, h int) bool { return g.W == w && g.H == h }

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Clone returns a deep copy.
func (g *Grid[T]) Clone() *Grid[T] {
	if g == nil {
		return nil
	}
	c := &Grid[T]{W: g.W, H: g.H, data: make([]T, len(g.data))}
	copy(c.data, g.data)
	return c
}

// Roll shifts the grid contents by (dx, dy) with wrap-around, so the value
// previously at (x, y) ends up at (x+dx, y+dy).
func (g *Grid[T]) Roll(dx, dy int) {
	if len(g.data) == 0 {
		return
	}
	dx = (dx%g.W + g.W) % g.W
	dy = (dy%g.H + g.H) % g.H
	if dx == 0 && dy == 0 {
		return
	}
	out := make([]T, len(g.data))
	for y := 0; y < g.H; y++ {
		ny := (y + dy) % g.H
		row := g.data[y*g.W : (y+1)*g.W]
		dst := out[ny*g.W : (ny+1)*g.W]
		for x, v := range row {
			dst[(x+dx)%g.W] = v
		}
	}
	g.data = out
}

// Neighbors4 calls fn for each in-bounds 4-neighbour of (x, y).
func (g *Grid[T]) Neighbors4(x, y int, fn func(nx, ny int)) {
	if x > 0 {
		fn(x-1, y)
	}
	if x < g.W-1 {
		fn(x+1, y)
	}
	if y > 0 {
		fn(x, y-1)
	}
	if y < g.H-1 {
		fn(x, y+1)
	}
}

// Neighbors8 calls fn for each in-bounds 8-neighbour of (x, y).
func (g *Grid[T]) Neighbors8(x, y int, fn func(nx, ny int)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if g.In(nx, ny) {
				fn(nx, ny)
			}
		}
	}
}

// Float is the grid type used by scalar layers.
type Float = Grid[float32]

// MinMax returns the smallest and largest values of a float grid.
func MinMax(g *Float) (lo, hi float32) {
	if g == nil || len(g.data) == 0 {
		return 0, 0
	}
	lo, hi = g.data[0], g.data[0]
	for _, v := range g.data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
