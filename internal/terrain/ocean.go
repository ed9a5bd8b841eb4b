package terrain

import (
	"fmt"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

const (
	// DefaultOceanLevel is the elevation at or below which border-connected
	// cells become ocean.
	DefaultOceanLevel = 1.0

	DefaultHillPercent     = 0.10
	DefaultMountainPercent = 0.03

	seaDepthRadius    = 5
	seaDepthAntiAlias = 10
)

// ThresholdInput describes the world the thresholds are computed for.
type ThresholdInput struct {
	Width      int
	Height     int
	NumPlates  int
	OceanLevel float64
	LandRatio  float64
}

// ThresholdSource decides which share of the map counts as hills and
// mountains.
type ThresholdSource interface {
	ThresholdPercentiles(in ThresholdInput) (hill, mountain float64)
}

// StaticThresholds always returns its fields.
type StaticThresholds struct {
	Hill     float64
	Mountain float64
}

func (s StaticThresholds) ThresholdPercentiles(ThresholdInput) (float64, float64) {
	return s.Hill, s.Mountain
}

// DefaultThresholds marks the highest 10% hills and the highest 3% mountains.
var DefaultThresholds = StaticThresholds{Hill: DefaultHillPercent, Mountain: DefaultMountainPercent}

// InitializeOceanAndThresholds derives the ocean layer, the elevation bands
// and the sea depth layer.
func InitializeOceanAndThresholds(w *world.World, oceanLevel float32, src ThresholdSource) error {
	if !w.HasElevation() {
		return fmt.Errorf("initialize ocean: world has no elevation")
	}
	if src == nil {
		src = DefaultThresholds
	}
	e := w.Elevation()
	ocean := FillOcean(e, oceanLevel)

	land := 0
	for _, o := range ocean.Cells() {
		if !o {
			land++
		}
	}
	hillPct, mountainPct := src.ThresholdPercentiles(ThresholdInput{
		Width:      e.W,
		Height:     e.H,
		NumPlates:  w.Params.NumPlates,
		OceanLevel: float64(oceanLevel),
		LandRatio:  float64(land) / float64(e.Len()),
	})
	if hillPct <= 0 || hillPct >= 1 || mountainPct <= 0 || mountainPct >= hillPct {
		return fmt.Errorf("initialize ocean: invalid percentiles hill=%.3f mountain=%.3f", hillPct, mountainPct)
	}
	hl := FindThreshold(e, hillPct)
	ml := FindThreshold(e, mountainPct)
	harmonizeOcean(ocean, e, oceanLevel)

	if err := w.SetOcean(ocean); err != nil {
		return err
	}
	if err := w.SetElevation(e, []world.Threshold{
		{Name: "sea", Value: oceanLevel},
		{Name: "plain", Value: hl},
		{Name: "hill", Value: ml},
		{Name: "mountain", Open: true},
	}); err != nil {
		return err
	}
	return w.SetSeaDepth(SeaDepth(e, ocean, oceanLevel))
}

// FillOcean flood-fills from every border cell at or below seaLevel.
// Inland depressions stay land.
func FillOcean(e *grid.Float, seaLevel float32) *grid.Grid[bool] {
	ocean := grid.New[bool](e.W, e.H)
	var queue [][2]int
	push := func(x, y int) {
		if e.At(x, y) <= seaLevel {
			queue = append(queue, [2]int{x, y})
		}
	}
	for x := 0; x < e.W; x++ {
		push(x, 0)
		push(x, e.H-1)
	}
	for y := 0; y < e.H; y++ {
		push(0, y)
		push(e.W-1, y)
	}
	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if ocean.At(p[0], p[1]) {
			continue
		}
		ocean.Set(p[0], p[1], true)
		e.Neighbors8(p[0], p[1], func(nx, ny int) {
			if !ocean.At(nx, ny) && e.At(nx, ny) <= seaLevel {
				queue = append(queue, [2]int{nx, ny})
			}
		})
	}
	return ocean
}

// FindThreshold returns the elevation above which roughly pct of all cells
// lie, by bisection over [-1000, 1000].
func FindThreshold(e *grid.Float, pct float64) float32 {
	desired := float64(e.Len()) * pct
	count := func(level float64) float64 {
		n := 0
		for _, v := range e.Cells() {
			if float64(v) > level {
				n++
			}
		}
		return float64(n)
	}
	a, b := -1000.0, 1000.0
	for b-a >= 0.00001 {
		m := (a + b) / 2
		if desired < count(m) {
			a = m
		} else {
			b = m
		}
	}
	return float32(a)
}

// harmonizeOcean compresses ocean depths towards the shallow-sea midpoint.
func harmonizeOcean(ocean *grid.Grid[bool], e *grid.Float, oceanLevel float32) {
	shallow := oceanLevel * 0.85
	mid := shallow / 2
	cells := e.Cells()
	for i, o := range ocean.Cells() {
		v := cells[i]
		if !o || v >= shallow {
			continue
		}
		if v < mid {
			cells[i] = mid - (mid-v)/5
		} else if v > mid {
			cells[i] = mid + (v-mid)/5
		}
	}
}

// SeaDepth returns ocean depth normalised to [0, 1]. Cells close to land are
// made shallower, then the field is smoothed.
func SeaDepth(e *grid.Float, ocean *grid.Grid[bool], oceanLevel float32) *grid.Float {
	depth := grid.New[float32](e.W, e.H)
	next := nextLand(ocean, seaDepthRadius)
	for i, v := range e.Cells() {
		d := oceanLevel - v
		if dist := next[i]; dist > 0 {
			d *= 1 - 1/(2*float32(dist))
		}
		depth.Cells()[i] = d
	}
	antiAlias(depth, seaDepthAntiAlias)
	lo, hi := grid.MinMax(depth)
	cells := depth.Cells()
	for i, v := range cells {
		if hi > lo {
			cells[i] = (v - lo) / (hi - lo)
		} else {
			cells[i] = 0
		}
	}
	return depth
}

// nextLand returns, per cell, the ring distance to the closest land cell:
// 0 on land, -1 beyond maxRadius.
func nextLand(ocean *grid.Grid[bool], maxRadius int) []int {
	out := make([]int, ocean.Len())
	for i, o := range ocean.Cells() {
		if o {
			out[i] = -1
		}
	}
	for r := 1; r <= maxRadius; r++ {
		for y := 0; y < ocean.H; y++ {
			for x := 0; x < ocean.W; x++ {
				i := ocean.Index(x, y)
				if out[i] != -1 {
					continue
				}
				ocean.Neighbors8(x, y, func(nx, ny int) {
					if d := out[ocean.Index(nx, ny)]; d >= 0 && d == r-1 {
						out[i] = r
					}
				})
			}
		}
	}
	return out
}

func antiAlias(g *grid.Float, steps int) {
	tmp := g.Clone()
	for s := 0; s < steps; s++ {
		src := g.Cells()
		dst := tmp.Cells()
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				var sum float32
				n := 0
				g.Neighbors8(x, y, func(nx, ny int) {
					sum += src[g.Index(nx, ny)]
					n++
				})
				v := src[g.Index(x, y)]
				if n > 0 {
					v = (v + sum/float32(n)) / 2
				}
				dst[g.Index(x, y)] = v
			}
		}
		copy(src, dst)
	}
}
