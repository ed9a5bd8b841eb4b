// Package terrain implements the finishing passes applied to a freshly
// simulated elevation layer.
package terrain

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/worldforge/server/internal/world"
)

const (
	noiseOctaves   = 8
	maxOceanBorder = 30
)

// CenterLand rolls elevation and plates so the row and the column with the
// lowest elevation sums end up on the map edges. This keeps the landmass
// away from the borders.
func CenterLand(w *world.World) error {
	if !w.HasElevation() || !w.HasPlates() {
		return fmt.Errorf("center land: world needs elevation and plates")
	}
	e := w.Elevation()
	rows := make([]float64, e.H)
	cols := make([]float64, e.W)
	for y := 0; y < e.H; y++ {
		for x := 0; x < e.W; x++ {
			v := float64(e.At(x, y))
			rows[y] += v
			cols[x] += v
		}
	}
	yMin := argmin(rows)
	xMin := argmin(cols)
	e.Roll(-xMin, -yMin)
	w.Plates().Roll(-xMin, -yMin)
	return nil
}

func argmin(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}

// AddNoiseToElevation perturbs elevation with octave simplex noise seeded by
// seed, breaking up the simulator's grid artifacts.
func AddNoiseToElevation(w *world.World, seed int64) error {
	if !w.HasElevation() {
		return fmt.Errorf("add noise: world has no elevation")
	}
	e := w.Elevation()
	noise := opensimplex.New(seed)
	freq := 16.0 * noiseOctaves
	for y := 0; y < e.H; y++ {
		for x := 0; x < e.W; x++ {
			n := fbm(noise, float64(x)/freq*2, float64(y)/freq*2, noiseOctaves)
			e.Set(x, y, e.At(x, y)+float32(n))
		}
	}
	return nil
}

// fbm sums octaves with halving amplitude; the result stays in [-1, 1].
func fbm(n opensimplex.Noise, x, y float64, octaves int) float64 {
	total, amp, freq, norm := 0.0, 1.0, 1.0, 0.0
	for o := 0; o < octaves; o++ {
		total += n.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return total / norm
}

// OceanBorder returns the width of the ocean ramp for a map.
func OceanBorder(width, height int) int {
	b := max(width/5, height/5)
	return min(maxOceanBorder, b)
}

// PlaceOceansAtMapBorders scales elevation down towards the map edges so no
// continent touches a border: the i-th ring from the edge keeps i/border of
// its height.
func PlaceOceansAtMapBorders(w *world.World) error {
	if !w.HasElevation() {
		return fmt.Errorf("place oceans: world has no elevation")
	}
	e := w.Elevation()
	border := OceanBorder(e.W, e.H)
	if border == 0 {
		return nil
	}
	scale := func(x, y, i int) {
		e.Set(x, y, e.At(x, y)*float32(i)/float32(border))
	}
	for x := 0; x < e.W; x++ {
		for i := 0; i < border && i < e.H; i++ {
			scale(x, i, i)
			scale(x, e.H-i-1, i)
		}
	}
	for y := 0; y < e.H; y++ {
		for i := 0; i < border && i < e.W; i++ {
			scale(i, y, i)
			scale(e.W-i-1, y, i)
		}
	}
	return nil
}
