package world

import (
	"fmt"

	"github.com/worldforge/server/internal/core/grid"
)

// Size is the width/height of a world in cells.
type Size struct {
	Width  int
	Height int
}

// Cells returns Width*Height.
func (s Size) Cells() int { return s.Width * s.Height }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// GenerationParameters records how a world was produced.
// SeaLevel is the simulator's sea level. OceanLevel is the flood level
// that splits ocean from land.
type GenerationParameters struct {
	NumPlates  int
	SeaLevel   float32
	OceanLevel float32
	Step       Step
}

// Threshold names one band of a layer. The last band of a list is open-ended
// and has Open set.
type Threshold struct {
	Name  string
	Value float32
	Open  bool
}

// Band returns the name of the first threshold whose value is not below v.
func Band(ths []Threshold, v float32) string {
	for _, th := range ths {
		if th.Open || v < th.Value {
			return th.Name
		}
	}
	return ""
}

// Layer names as persisted and as addressed over the wire.
const (
	LayerElevation     = "elevation"
	LayerPlates        = "plates"
	LayerOcean         = "ocean"
	LayerSeaDepth      = "sea_depth"
	LayerPrecipitation = "precipitation"
	LayerRivers        = "rivers"
	LayerLakes         = "lakes"
	LayerWatermap      = "watermap"
	LayerIrrigation    = "irrigation"
	LayerTemperature   = "temperature"
	LayerHumidity      = "humidity"
	LayerPermeability  = "permeability"
	LayerIcecap        = "icecap"
	LayerBiome         = "biome"
)

// World is the aggregate of named 2D layers plus metadata describing one
// generated world. Layers are assigned whole through the Set* methods; a nil
// layer means the layer is absent.
//
// A World is not safe for concurrent mutation. The server keeps it on the
// loop goroutine and hands workers a Clone.
type World struct {
	Name   string
	Size   Size
	Seed   int64
	Params GenerationParameters

	elevation     *grid.Float
	elevationTh   []Threshold
	plates        *grid.Grid[uint16]
	ocean         *grid.Grid[bool]
	seaDepth      *grid.Float
	precipitation *grid.Float
	precipTh      []Threshold
	rivers        *grid.Float
	lakes         *grid.Float
	watermap      *grid.Float
	watermapTh    []Threshold
	irrigation    *grid.Float
	permeability  *grid.Float
	permeabTh     []Threshold
	temperature   *grid.Float
	temperatureTh []Threshold
	humidity      *grid.Float
	humidityTh    []Threshold
	icecap        *grid.Float
	biome         *grid.Grid[uint8]
	biomeNames    []string
}

// New creates an empty world.
func New(name string, size Size, seed int64, params GenerationParameters) *World {
	return &World{
		Name:   name,
		Size:   size,
		Seed:   seed,
		Params: params,
	}
}

// Width returns Size.Width.
func (w *World) Width() int { return w.Size.Width }

// Height returns Size.Height.
func (w *World) Height() int { return w.Size.Height }

// Contains reports whether (x, y) lies inside the world.
func (w *World) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < w.Size.Width && y < w.Size.Height
}

func (w *World) checkSize(layer string, gw, gh int) error {
	if gw != w.Size.Width || gh != w.Size.Height {
		return fmt.Errorf("layer %s is %dx%d, world is %s", layer, gw, gh, w.Size)
	}
	return nil
}

// ── elevation ──

func (w *World) HasElevation() bool { return w.elevation != nil }

// Elevation returns the elevation grid for in-place passes.
func (w *World) Elevation() *grid.Float { return w.elevation }

// ElevationThresholds returns the sea/plain/hill/mountain bands.
func (w *World) ElevationThresholds() []Threshold { return w.elevationTh }

func (w *World) SetElevation(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerElevation)
	}
	if err := w.checkSize(LayerElevation, g.W, g.H); err != nil {
		return err
	}
	w.elevation = g
	w.elevationTh = th
	return nil
}

func (w *World) ElevationAt(x, y int) float32 { return w.elevation.At(x, y) }

// IsLand reports whether the cell is not ocean. Without an ocean layer every
// cell above the ocean level counts as land.
func (w *World) IsLand(x, y int) bool {
	if w.ocean != nil {
		return !w.ocean.At(x, y)
	}
	return w.elevation != nil && w.elevation.At(x, y) > w.Params.OceanLevel
}

// ── plates ──

func (w *World) HasPlates() bool { return w.plates != nil }

func (w *World) Plates() *grid.Grid[uint16] { return w.plates }

func (w *World) SetPlates(g *grid.Grid[uint16]) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerPlates)
	}
	if err := w.checkSize(LayerPlates, g.W, g.H); err != nil {
		return err
	}
	w.plates = g
	return nil
}

func (w *World) PlateAt(x, y int) uint16 { return w.plates.At(x, y) }

// ── ocean ──

func (w *World) HasOcean() bool { return w.ocean != nil }

func (w *World) Ocean() *grid.Grid[bool] { return w.ocean }

func (w *World) SetOcean(g *grid.Grid[bool]) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerOcean)
	}
	if err := w.checkSize(LayerOcean, g.W, g.H); err != nil {
		return err
	}
	w.ocean = g
	return nil
}

func (w *World) IsOcean(x, y int) bool { return w.ocean.At(x, y) }

// ── sea depth ──

func (w *World) HasSeaDepth() bool { return w.seaDepth != nil }

func (w *World) SeaDepth() *grid.Float { return w.seaDepth }

func (w *World) SetSeaDepth(g *grid.Float) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerSeaDepth)
	}
	if err := w.checkSize(LayerSeaDepth, g.W, g.H); err != nil {
		return err
	}
	w.seaDepth = g
	return nil
}

func (w *World) SeaDepthAt(x, y int) float32 { return w.seaDepth.At(x, y) }

// ── precipitation ──

func (w *World) HasPrecipitation() bool { return w.precipitation != nil }

func (w *World) Precipitation() *grid.Float { return w.precipitation }

func (w *World) PrecipitationThresholds() []Threshold { return w.precipTh }

func (w *World) SetPrecipitation(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerPrecipitation)
	}
	if err := w.checkSize(LayerPrecipitation, g.W, g.H); err != nil {
		return err
	}
	w.precipitation = g
	w.precipTh = th
	return nil
}

func (w *World) PrecipitationAt(x, y int) float32 { return w.precipitation.At(x, y) }

// ── rivers and lakes ──

// HasErosion reports whether the erosion layers are present.
func (w *World) HasErosion() bool { return w.rivers != nil && w.lakes != nil }

// Rivers holds the water flow of river cells, zero elsewhere.
func (w *World) Rivers() *grid.Float { return w.rivers }

// Lakes holds the water volume of lake cells, zero elsewhere.
func (w *World) Lakes() *grid.Float { return w.lakes }

func (w *World) SetRivers(g *grid.Float) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerRivers)
	}
	if err := w.checkSize(LayerRivers, g.W, g.H); err != nil {
		return err
	}
	w.rivers = g
	return nil
}

func (w *World) SetLakes(g *grid.Float) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerLakes)
	}
	if err := w.checkSize(LayerLakes, g.W, g.H); err != nil {
		return err
	}
	w.lakes = g
	return nil
}

func (w *World) RiverAt(x, y int) float32 { return w.rivers.At(x, y) }

func (w *World) LakeAt(x, y int) float32 { return w.lakes.At(x, y) }

// ── watermap ──

func (w *World) HasWatermap() bool { return w.watermap != nil }

func (w *World) Watermap() *grid.Float { return w.watermap }

func (w *World) WatermapThresholds() []Threshold { return w.watermapTh }

func (w *World) SetWatermap(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerWatermap)
	}
	if err := w.checkSize(LayerWatermap, g.W, g.H); err != nil {
		return err
	}
	w.watermap = g
	w.watermapTh = th
	return nil
}

func (w *World) WatermapAt(x, y int) float32 { return w.watermap.At(x, y) }

// ── irrigation ──

func (w *World) HasIrrigation() bool { return w.irrigation != nil }

func (w *World) Irrigation() *grid.Float { return w.irrigation }

func (w *World) SetIrrigation(g *grid.Float) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerIrrigation)
	}
	if err := w.checkSize(LayerIrrigation, g.W, g.H); err != nil {
		return err
	}
	w.irrigation = g
	return nil
}

func (w *World) IrrigationAt(x, y int) float32 { return w.irrigation.At(x, y) }

// ── temperature ──

func (w *World) HasTemperature() bool { return w.temperature != nil }

func (w *World) Temperature() *grid.Float { return w.temperature }

func (w *World) TemperatureThresholds() []Threshold { return w.temperatureTh }

func (w *World) SetTemperature(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerTemperature)
	}
	if err := w.checkSize(LayerTemperature, g.W, g.H); err != nil {
		return err
	}
	w.temperature = g
	w.temperatureTh = th
	return nil
}

func (w *World) TemperatureAt(x, y int) float32 { return w.temperature.At(x, y) }

// ── humidity ──

func (w *World) HasHumidity() bool { return w.humidity != nil }

func (w *World) Humidity() *grid.Float { return w.humidity }

func (w *World) HumidityThresholds() []Threshold { return w.humidityTh }

func (w *World) SetHumidity(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerHumidity)
	}
	if err := w.checkSize(LayerHumidity, g.W, g.H); err != nil {
		return err
	}
	w.humidity = g
	w.humidityTh = th
	return nil
}

func (w *World) HumidityAt(x, y int) float32 { return w.humidity.At(x, y) }

// ── permeability ──

func (w *World) HasPermeability() bool { return w.permeability != nil }

func (w *World) Permeability() *grid.Float { return w.permeability }

func (w *World) PermeabilityThresholds() []Threshold { return w.permeabTh }

func (w *World) SetPermeability(g *grid.Float, th []Threshold) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerPermeability)
	}
	if err := w.checkSize(LayerPermeability, g.W, g.H); err != nil {
		return err
	}
	w.permeability = g
	w.permeabTh = th
	return nil
}

func (w *World) PermeabilityAt(x, y int) float32 { return w.permeability.At(x, y) }

// ── icecap ──

func (w *World) HasIcecap() bool { return w.icecap != nil }

func (w *World) Icecap() *grid.Float { return w.icecap }

func (w *World) SetIcecap(g *grid.Float) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerIcecap)
	}
	if err := w.checkSize(LayerIcecap, g.W, g.H); err != nil {
		return err
	}
	w.icecap = g
	return nil
}

func (w *World) IcecapAt(x, y int) float32 { return w.icecap.At(x, y) }

// ── biome ──

func (w *World) HasBiome() bool { return w.biome != nil }

// Biome returns the biome index grid and the names the indices refer to.
func (w *World) Biome() (*grid.Grid[uint8], []string) { return w.biome, w.biomeNames }

func (w *World) SetBiome(g *grid.Grid[uint8], names []string) error {
	if g == nil {
		return fmt.Errorf("set %s: nil grid", LayerBiome)
	}
	if err := w.checkSize(LayerBiome, g.W, g.H); err != nil {
		return err
	}
	for _, v := range g.Cells() {
		if int(v) >= len(names) {
			return fmt.Errorf("set %s: index %d outside %d names", LayerBiome, v, len(names))
		}
	}
	w.biome = g
	w.biomeNames = names
	return nil
}

func (w *World) BiomeAt(x, y int) string { return w.biomeNames[w.biome.At(x, y)] }

// Layers lists the names of the present layers in a stable order.
func (w *World) Layers() []string {
	var out []string
	for _, l := range []struct {
		name    string
		present bool
	}{
		{LayerElevation, w.HasElevation()},
		{LayerPlates, w.HasPlates()},
		{LayerOcean, w.HasOcean()},
		{LayerSeaDepth, w.HasSeaDepth()},
		{LayerPrecipitation, w.HasPrecipitation()},
		{LayerRivers, w.rivers != nil},
		{LayerLakes, w.lakes != nil},
		{LayerWatermap, w.HasWatermap()},
		{LayerIrrigation, w.HasIrrigation()},
		{LayerTemperature, w.HasTemperature()},
		{LayerHumidity, w.HasHumidity()},
		{LayerPermeability, w.HasPermeability()},
		{LayerIcecap, w.HasIcecap()},
		{LayerBiome, w.HasBiome()},
	} {
		if l.present {
			out = append(out, l.name)
		}
	}
	return out
}

// Clone deep-copies the world so a worker can mutate it off the loop goroutine.
func (w *World) Clone() *World {
	c := *w
	c.elevation = w.elevation.Clone()
	c.elevationTh = append([]Threshold(nil), w.elevationTh...)
	c.plates = w.plates.Clone()
	c.ocean = w.ocean.Clone()
	c.seaDepth = w.seaDepth.Clone()
	c.precipitation = w.precipitation.Clone()
	c.precipTh = append([]Threshold(nil), w.precipTh...)
	c.rivers = w.rivers.Clone()
	c.lakes = w.lakes.Clone()
	c.watermap = w.watermap.Clone()
	c.watermapTh = append([]Threshold(nil), w.watermapTh...)
	c.irrigation = w.irrigation.Clone()
	c.permeability = w.permeability.Clone()
	c.permeabTh = append([]Threshold(nil), w.permeabTh...)
	c.temperature = w.temperature.Clone()
	c.temperatureTh = append([]Threshold(nil), w.temperatureTh...)
	c.humidity = w.humidity.Clone()
	c.humidityTh = append([]Threshold(nil), w.humidityTh...)
	c.icecap = w.icecap.Clone()
	c.biome = w.biome.Clone()
	c.biomeNames = append([]string(nil), w.biomeNames...)
	return &c
}
