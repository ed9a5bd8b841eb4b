// Package simulation holds the follow-up simulations that add climate layers
// to a generated world.
package simulation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/world"
)

// ErrNotApplicable is returned when a world lacks the layers a simulation
// reads.
var ErrNotApplicable = errors.New("simulation not applicable")

// MaxSeed bounds the random seed drawn for one simulation run.
const MaxSeed = 65536

// Simulation adds one layer to a world.
type Simulation interface {
	Name() string
	Title() string
	IsApplicable(w *world.World) bool
	Execute(w *world.World, seed int64) error
}

// RandomSeed draws a seed from [0, MaxSeed].
func RandomSeed() int64 {
	return rand.Int64N(MaxSeed + 1)
}

// Run executes sim on w and narrates it to sink.
func Run(w *world.World, sim Simulation, seed int64, sink generation.Sink) error {
	if sink == nil {
		sink = generation.NopSink{}
	}
	if !sim.IsApplicable(w) {
		return fmt.Errorf("%s: %w", sim.Name(), ErrNotApplicable)
	}
	stage := generation.Stage(sim.Name())
	sink.Progress(generation.Event{Stage: stage, Message: fmt.Sprintf("%s: started (seed %d)", sim.Title(), seed)})
	if err := sim.Execute(w, seed); err != nil {
		return fmt.Errorf("%s: %w", sim.Name(), err)
	}
	sink.Progress(generation.Event{Stage: stage, Message: fmt.Sprintf("%s: done (seed %d)", sim.Title(), seed)})
	sink.Completed()
	return nil
}

// Registry looks simulations up by name.
type Registry struct {
	sims  map[string]Simulation
	order []string
}

// NewRegistry registers every built-in simulation in dependency order.
func NewRegistry(biomes *data.BiomeTable) *Registry {
	r := &Registry{sims: make(map[string]Simulation)}
	r.Register(Precipitation{})
	r.Register(Erosion{})
	r.Register(Watermap{})
	r.Register(Irrigation{})
	r.Register(Temperature{})
	r.Register(Humidity{})
	r.Register(Permeability{})
	r.Register(Icecap{})
	r.Register(Biome{Table: biomes})
	return r
}

func (r *Registry) Register(s Simulation) {
	if _, ok := r.sims[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.sims[s.Name()] = s
}

// Get returns the named simulation, suggesting the closest name on a miss.
func (r *Registry) Get(name string) (Simulation, error) {
	if s, ok := r.sims[name]; ok {
		return s, nil
	}
	if s := data.Suggest(name, r.order); s != "" {
		return nil, fmt.Errorf("unknown simulation %q, did you mean %q?", name, s)
	}
	return nil, fmt.Errorf("unknown simulation %q", name)
}

// Names lists the registered simulations in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Applicable lists the simulations that can run on w right now.
func (r *Registry) Applicable(w *world.World) []string {
	var out []string
	for _, n := range r.order {
		if r.sims[n].IsApplicable(w) {
			out = append(out, n)
		}
	}
	return out
}

// Chain returns the simulations needed to take a plates-stage world to step.
func (r *Registry) Chain(step world.Step) []Simulation {
	var names []string
	if step.IncludePrecipitations {
		names = append(names, NamePrecipitation)
	}
	if step.IncludeErosion {
		names = append(names, NameErosion)
	}
	if step.IncludeBiome {
		names = append(names, NameWatermap, NameIrrigation, NameTemperature,
			NameHumidity, NamePermeability, NameIcecap, NameBiome)
	}
	out := make([]Simulation, 0, len(names))
	for _, n := range names {
		if s, ok := r.sims[n]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RunChain runs every simulation of Chain(step) and stamps the step on w.
// Each simulation gets its own seed from next.
func (r *Registry) RunChain(w *world.World, step world.Step, next func() int64, sink generation.Sink) error {
	if next == nil {
		next = RandomSeed
	}
	for _, s := range r.Chain(step) {
		if err := Run(w, s, next(), sink); err != nil {
			return err
		}
	}
	w.Params.Step = step
	return nil
}

// percentileAbove returns the value that a share pct of the selected cells
// are at or above. With no selected cells every cell is used.
func percentileAbove(cells []float32, keep func(i int) bool, pct float64) float32 {
	var vals []float32
	for i, v := range cells {
		if keep == nil || keep(i) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		vals = append(vals, cells...)
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Slice(vals, func(a, b int) bool { return vals[a] < vals[b] })
	idx := int((1 - pct) * float64(len(vals)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}

// bandThresholds builds an ascending band list. Each entry of pcts is the
// share of cells at or above the band's upper bound; the last name is open.
func bandThresholds(cells []float32, keep func(i int) bool, names []string, pcts []float64) []world.Threshold {
	out := make([]world.Threshold, 0, len(names))
	for i, n := range names {
		if i == len(names)-1 {
			out = append(out, world.Threshold{Name: n, Open: true})
			break
		}
		out = append(out, world.Threshold{Name: n, Value: percentileAbove(cells, keep, pcts[i])})
	}
	return out
}

func normalize(cells []float32) {
	if len(cells) == 0 {
		return
	}
	lo, hi := cells[0], cells[0]
	for _, v := range cells {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	for i, v := range cells {
		if hi > lo {
			cells[i] = (v - lo) / (hi - lo)
		} else {
			cells[i] = 0
		}
	}
}

func landMask(w *world.World) func(i int) bool {
	ocean := w.Ocean().Cells()
	return func(i int) bool { return !ocean[i] }
}

// latitude maps row y to 0 at the equator and 1 at either pole.
func latitude(y, h int) float64 {
	if h <= 1 {
		return 0
	}
	v := 2*float64(y)/float64(h-1) - 1
	if v < 0 {
		return -v
	}
	return v
}
