package simulation

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

const (
	NamePrecipitation = "precipitation"
	NameTemperature   = "temperature"
	NameHumidity      = "humidity"
	NameIcecap        = "icecap"
	NameBiome         = "biome"

	climateNoiseScale   = 48.0
	climateNoiseOctaves = 6
)

// fbm sums normalised octaves; the result stays in [0, 1].
func fbm(n opensimplex.Noise, x, y float64) float64 {
	total, amp, freq, norm := 0.0, 1.0, 1.0/climateNoiseScale, 0.0
	for o := 0; o < climateNoiseOctaves; o++ {
		total += n.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return total / norm
}

// ── precipitation ──

// Precipitation is wetter at the equator and drier towards the poles, with
// noise on top. Bands are low, med and high over land cells.
type Precipitation struct{}

func (Precipitation) Name() string  { return NamePrecipitation }
func (Precipitation) Title() string { return "Simulating precipitations" }

func (Precipitation) IsApplicable(w *world.World) bool {
	return w.HasElevation() && w.HasOcean()
}

func (Precipitation) Execute(w *world.World, seed int64) error {
	noise := opensimplex.NewNormalized(seed)
	g := grid.New[float32](w.Width(), w.Height())
	for y := 0; y < g.H; y++ {
		lat := latitude(y, g.H)
		for x := 0; x < g.W; x++ {
			v := fbm(noise, float64(x), float64(y))
			g.Set(x, y, float32(v*(1.1-0.6*lat)))
		}
	}
	normalize(g.Cells())
	th := bandThresholds(g.Cells(), landMask(w), []string{"low", "med", "high"}, []float64{0.75, 0.3})
	return w.SetPrecipitation(g, th)
}

// ── temperature ──

// TemperatureBandShares are the shares of cells at or above the upper bound
// of each temperature band, coldest first.
var TemperatureBandShares = []float64{0.874, 0.765, 0.594, 0.439, 0.366, 0.124}

// Temperature falls with latitude and with height above the ocean level.
type Temperature struct{}

func (Temperature) Name() string  { return NameTemperature }
func (Temperature) Title() string { return "Simulating temperature" }

func (Temperature) IsApplicable(w *world.World) bool {
	return w.HasElevation() && w.HasOcean()
}

func (Temperature) Execute(w *world.World, seed int64) error {
	noise := opensimplex.NewNormalized(seed)
	level := w.Params.OceanLevel
	g := grid.New[float32](w.Width(), w.Height())
	for y := 0; y < g.H; y++ {
		lat := latitude(y, g.H)
		for x := 0; x < g.W; x++ {
			t := (1-lat)*0.85 + fbm(noise, float64(x), float64(y))*0.15
			if !w.IsOcean(x, y) {
				if above := float64(w.ElevationAt(x, y) - level); above > 0 {
					t -= min(0.3, above*0.1)
				}
			}
			g.Set(x, y, float32(t))
		}
	}
	normalize(g.Cells())
	names := []string{"polar", "alpine", "boreal", "cool", "warm", "subtropical", "tropical"}
	return w.SetTemperature(g, bandThresholds(g.Cells(), nil, names, TemperatureBandShares))
}

// ── humidity ──

// HumidityBandShares are the shares of land cells at or above the upper
// bound of each humidity band, driest first.
var HumidityBandShares = []float64{0.941, 0.778, 0.507, 0.236, 0.073, 0.014, 0.002}

// Humidity blends precipitation with irrigation, weighted 1 to 3, then
// smooths it and adds moisture on coasts.
type Humidity struct{}

func (Humidity) Name() string  { return NameHumidity }
func (Humidity) Title() string { return "Simulating humidity" }

func (Humidity) IsApplicable(w *world.World) bool {
	return w.HasPrecipitation() && w.HasIrrigation() && w.HasOcean()
}

func (Humidity) Execute(w *world.World, _ int64) error {
	g := w.Precipitation().Clone()
	irr := w.Irrigation().Cells()
	for i, v := range g.Cells() {
		g.Cells()[i] = (v + 3*irr[i]) / 4
	}
	for i := 0; i < 3; i++ {
		smooth(g)
	}
	ocean := w.Ocean()
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if ocean.At(x, y) {
				continue
			}
			coast := false
			ocean.Neighbors4(x, y, func(nx, ny int) {
				if ocean.At(nx, ny) {
					coast = true
				}
			})
			if coast {
				g.Set(x, y, g.At(x, y)+0.1)
			}
		}
	}
	normalize(g.Cells())
	names := []string{"superarid", "perarid", "arid", "semiarid", "subhumid", "humid", "perhumid", "superhumid"}
	return w.SetHumidity(g, bandThresholds(g.Cells(), landMask(w), names, HumidityBandShares))
}

func smooth(g *grid.Float) {
	src := g.Clone()
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			sum := src.At(x, y)
			n := float32(1)
			src.Neighbors4(x, y, func(nx, ny int) {
				sum += src.At(nx, ny)
				n++
			})
			g.Set(x, y, sum/n)
		}
	}
}

// ── icecap ──

// Icecap freezes ocean cells colder than the polar band bound. Thickness is
// in [0, 1] and zero elsewhere.
type Icecap struct{}

func (Icecap) Name() string  { return NameIcecap }
func (Icecap) Title() string { return "Simulating icecap" }

func (Icecap) IsApplicable(w *world.World) bool {
	return w.HasOcean() && w.HasTemperature()
}

func (Icecap) Execute(w *world.World, seed int64) error {
	ths := w.TemperatureThresholds()
	if len(ths) == 0 {
		return fmt.Errorf("temperature has no bands")
	}
	freeze := ths[0].Value
	noise := opensimplex.NewNormalized(seed)
	g := grid.New[float32](w.Width(), w.Height())
	if freeze > 0 {
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				t := w.TemperatureAt(x, y)
				if !w.IsOcean(x, y) || t >= freeze {
					continue
				}
				n := float32(0.5 + 0.5*fbm(noise, float64(x), float64(y)))
				g.Set(x, y, min(1, (freeze-t)/freeze*n))
			}
		}
	}
	return w.SetIcecap(g)
}
