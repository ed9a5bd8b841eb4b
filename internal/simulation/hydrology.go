package simulation

import (
	"math"
	"math/rand/v2"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

const (
	NameErosion      = "erosion"
	NameWatermap     = "watermap"
	NameIrrigation   = "irrigation"
	NamePermeability = "permeability"
)

// Erosion and lake tuning.
const (
	RiverShare      = 0.04  // share of land cells whose flow makes them a river
	LakeDepth       = 0.05  // how far above the pit a lake may rise
	MaxLakeCells    = 64    // lakes stop spreading at this many cells
	FluvialRate     = 0.02  // river bed lowering per unit of log flow
	CoastalRate     = 0.01  // lowering of land cells next to the ocean
	IrrigationRange = 10    // radius of the irrigation kernel
	maxDroplets     = 20000 // watermap droplet cap
)

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// downhill returns the steepest strictly lower 8-neighbour of (x, y).
func downhill(e *grid.Float, x, y int) (int, int, bool) {
	bx, by, best := -1, -1, e.At(x, y)
	e.Neighbors8(x, y, func(nx, ny int) {
		if v := e.At(nx, ny); v < best {
			bx, by, best = nx, ny, v
		}
	})
	return bx, by, bx >= 0
}

// ── erosion ──

// Erosion routes precipitation downhill to find rivers, fills pits into
// lakes, then carves river beds and wears down coasts. Land never drops
// below the ocean level.
type Erosion struct{}

func (Erosion) Name() string  { return NameErosion }
func (Erosion) Title() string { return "Simulating erosion" }

func (Erosion) IsApplicable(w *world.World) bool {
	return w.HasElevation() && w.HasOcean() && w.HasPrecipitation()
}

func (Erosion) Execute(w *world.World, seed int64) error {
	rng := newRand(seed)
	elev := w.Elevation()
	ocean := w.Ocean()
	precip := w.Precipitation()
	n := elev.Len()

	land := make([]int, 0, n)
	for i, o := range ocean.Cells() {
		if !o {
			land = append(land, i)
		}
	}
	cells := elev.Cells()
	sort.Slice(land, func(a, b int) bool { return cells[land[a]] > cells[land[b]] })

	// Accumulate flow from the highest land cell down.
	flow := make([]float32, n)
	for _, i := range land {
		flow[i] += precip.Cells()[i]
	}
	var pits []int
	for _, i := range land {
		x, y := i%elev.W, i/elev.W
		nx, ny, ok := downhill(elev, x, y)
		if !ok {
			pits = append(pits, i)
			continue
		}
		flow[elev.Index(nx, ny)] += flow[i]
	}

	riverTh := percentileAbove(flow, landMask(w), RiverShare)
	rivers := grid.New[float32](elev.W, elev.H)
	for _, i := range land {
		if riverTh > 0 && flow[i] >= riverTh {
			rivers.Cells()[i] = flow[i]
		}
	}

	lakes := grid.New[float32](elev.W, elev.H)
	for _, p := range pits {
		if riverTh <= 0 || flow[p] < riverTh {
			continue
		}
		fillLake(elev, ocean, lakes, p, flow[p])
	}

	// Carve: fluvial along rivers, coastal next to the ocean.
	level := w.Params.OceanLevel
	delta := make([]float32, n)
	for _, i := range land {
		x, y := i%elev.W, i/elev.W
		if f := rivers.Cells()[i]; f > 0 {
			d := FluvialRate * float32(math.Log1p(float64(f/riverTh))) * (0.5 + rng.Float32())
			delta[i] += d
			elev.Neighbors4(x, y, func(nx, ny int) {
				if !ocean.At(nx, ny) {
					delta[elev.Index(nx, ny)] += d / 4
				}
			})
		}
		coast := false
		ocean.Neighbors4(x, y, func(nx, ny int) {
			if ocean.At(nx, ny) {
				coast = true
			}
		})
		if coast {
			delta[i] += CoastalRate * (0.5 + rng.Float32())
		}
	}
	eroded := elev.Clone()
	for _, i := range land {
		v := cells[i]
		eroded.Cells()[i] = max(v-delta[i], min(v, level))
	}

	if err := w.SetElevation(eroded, w.ElevationThresholds()); err != nil {
		return err
	}
	if err := w.SetRivers(rivers); err != nil {
		return err
	}
	return w.SetLakes(lakes)
}

// fillLake floods outward from pit p over land no higher than the pit plus
// LakeDepth, stopping at MaxLakeCells.
func fillLake(elev *grid.Float, ocean *grid.Grid[bool], lakes *grid.Float, p int, volume float32) {
	top := elev.Cells()[p] + LakeDepth
	seen := map[int]bool{p: true}
	queue := []int{p}
	var filled []int
	for len(queue) > 0 && len(filled) < MaxLakeCells {
		i := queue[0]
		queue = queue[1:]
		filled = append(filled, i)
		elev.Neighbors8(i%elev.W, i/elev.W, func(nx, ny int) {
			j := elev.Index(nx, ny)
			if seen[j] || ocean.At(nx, ny) || elev.At(nx, ny) > top {
				return
			}
			seen[j] = true
			queue = append(queue, j)
		})
	}
	share := volume / float32(len(filled))
	for _, i := range filled {
		lakes.Cells()[i] = max(lakes.Cells()[i], share)
	}
}

// ── watermap ──

// Watermap drops rain on random land cells and follows each droplet
// downhill, adding its precipitation to every cell it crosses. Bands are
// none, creek, river and main_river over land cells.
type Watermap struct{}

func (Watermap) Name() string  { return NameWatermap }
func (Watermap) Title() string { return "Simulating water flow" }

func (Watermap) IsApplicable(w *world.World) bool {
	return w.HasElevation() && w.HasOcean() && w.HasPrecipitation()
}

func (Watermap) Execute(w *world.World, seed int64) error {
	rng := newRand(seed)
	elev := w.Elevation()
	ocean := w.Ocean()
	precip := w.Precipitation()
	g := grid.New[float32](elev.W, elev.H)

	var land []int
	for i, o := range ocean.Cells() {
		if !o {
			land = append(land, i)
		}
	}
	if len(land) > 0 {
		drops := min(maxDroplets, 2*len(land))
		maxSteps := elev.W + elev.H
		for d := 0; d < drops; d++ {
			i := land[rng.IntN(len(land))]
			q := precip.Cells()[i]
			if q <= 0 {
				continue
			}
			x, y := i%elev.W, i/elev.W
			for step := 0; step < maxSteps && !ocean.At(x, y); step++ {
				g.Set(x, y, g.At(x, y)+q)
				nx, ny, ok := downhill(elev, x, y)
				if !ok {
					break
				}
				x, y = nx, ny
			}
		}
	}

	names := []string{"none", "creek", "river", "main_river"}
	th := bandThresholds(g.Cells(), landMask(w), names, []float64{0.05, 0.02, 0.007})
	return w.SetWatermap(g, th)
}

// ── irrigation ──

// Irrigation spreads the watermap over nearby land, weighting each source
// by 1/(ln(d+1)+1). The result is normalised to [0, 1]; ocean is zero.
type Irrigation struct{}

func (Irrigation) Name() string  { return NameIrrigation }
func (Irrigation) Title() string { return "Simulating irrigation" }

func (Irrigation) IsApplicable(w *world.World) bool {
	return w.HasWatermap() && w.HasOcean()
}

func (Irrigation) Execute(w *world.World, _ int64) error {
	wm := w.Watermap()
	ocean := w.Ocean()
	g := grid.New[float32](wm.W, wm.H)
	r := IrrigationRange
	for sy := 0; sy < wm.H; sy++ {
		for sx := 0; sx < wm.W; sx++ {
			v := wm.At(sx, sy)
			if v <= 0 {
				continue
			}
			for y := max(0, sy-r); y <= min(wm.H-1, sy+r); y++ {
				for x := max(0, sx-r); x <= min(wm.W-1, sx+r); x++ {
					if ocean.At(x, y) {
						continue
					}
					dist := math.Hypot(float64(x-sx), float64(y-sy))
					if dist > float64(r) {
						continue
					}
					g.Set(x, y, g.At(x, y)+v/float32(math.Log1p(dist)+1))
				}
			}
		}
	}
	normalize(g.Cells())
	for i, o := range ocean.Cells() {
		if o {
			g.Cells()[i] = 0
		}
	}
	return w.SetIrrigation(g)
}

// ── permeability ──

// Permeability is how readily the ground drains. Bands are low, med and
// high over land cells.
type Permeability struct{}

func (Permeability) Name() string  { return NamePermeability }
func (Permeability) Title() string { return "Simulating permeability" }

func (Permeability) IsApplicable(w *world.World) bool {
	return w.HasElevation() && w.HasOcean()
}

func (Permeability) Execute(w *world.World, seed int64) error {
	noise := opensimplex.NewNormalized(seed)
	g := grid.New[float32](w.Width(), w.Height())
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			g.Set(x, y, float32(fbm(noise, float64(x), float64(y))))
		}
	}
	normalize(g.Cells())
	th := bandThresholds(g.Cells(), landMask(w), []string{"low", "med", "high"}, []float64{0.75, 0.25})
	return w.SetPermeability(g, th)
}
