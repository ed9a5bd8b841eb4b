package world

import (
	"fmt"
	"strings"
)

// Readout is the per-cell summary shown when hovering over a map position.
// Fields whose layer is absent are left nil.
type Readout struct {
	X, Y          int
	Elevation     float32
	Plate         *uint16
	Ocean         *bool
	Biome         *string
	Temperature   *float32
	Humidity      *float32
	Precipitation *float32
	Watermap      *float32
	Icecap        *float32
}

// ReadoutAt collects every present layer value at (x, y).
func (w *World) ReadoutAt(x, y int) (Readout, error) {
	if !w.Contains(x, y) {
		return Readout{}, fmt.Errorf("position (%d,%d) outside %s", x, y, w.Size)
	}
	r := Readout{X: x, Y: y}
	if w.HasElevation() {
		r.Elevation = w.ElevationAt(x, y)
	}
	if w.HasPlates() {
		v := w.PlateAt(x, y)
		r.Plate = &v
	}
	if w.HasOcean() {
		v := w.IsOcean(x, y)
		r.Ocean = &v
	}
	if w.HasBiome() {
		v := w.BiomeAt(x, y)
		r.Biome = &v
	}
	if w.HasTemperature() {
		v := w.TemperatureAt(x, y)
		r.Temperature = &v
	}
	if w.HasHumidity() {
		v := w.HumidityAt(x, y)
		r.Humidity = &v
	}
	if w.HasPrecipitation() {
		v := w.PrecipitationAt(x, y)
		r.Precipitation = &v
	}
	if w.HasWatermap() {
		v := w.WatermapAt(x, y)
		r.Watermap = &v
	}
	if w.HasIcecap() {
		v := w.IcecapAt(x, y)
		r.Icecap = &v
	}
	return r, nil
}

// Lines renders the readout as label/value lines.
func (r Readout) Lines() []string {
	na := "n/a"
	f := func(p *float32) string {
		if p == nil {
			return na
		}
		return fmt.Sprintf("%.3f", *p)
	}
	biome := na
	if r.Biome != nil {
		biome = *r.Biome
	}
	water := na
	if r.Ocean != nil {
		water = fmt.Sprintf("%t", *r.Ocean)
	}
	plate := na
	if r.Plate != nil {
		plate = fmt.Sprintf("%d", *r.Plate)
	}
	return []string{
		fmt.Sprintf("Position: (%d, %d)", r.X, r.Y),
		fmt.Sprintf("Biome: %s", biome),
		fmt.Sprintf("Elevation: %.3f", r.Elevation),
		fmt.Sprintf("Plate: %s", plate),
		fmt.Sprintf("Temperature: %s", f(r.Temperature)),
		fmt.Sprintf("Humidity: %s", f(r.Humidity)),
		fmt.Sprintf("Precipitations: %s", f(r.Precipitation)),
		fmt.Sprintf("Watermap: %s", f(r.Watermap)),
		fmt.Sprintf("Icecap: %s", f(r.Icecap)),
		fmt.Sprintf("Ocean: %s", water),
	}
}

func (r Readout) String() string { return strings.Join(r.Lines(), "\n") }
