package simulation

import (
	"fmt"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/world"
)

// Biome classifies every cell through the biome table: water cells by sea
// depth, land cells by their temperature and humidity bands.
type Biome struct {
	Table *data.BiomeTable
}

func (Biome) Name() string  { return NameBiome }
func (Biome) Title() string { return "Simulating biomes" }

func (Biome) IsApplicable(w *world.World) bool {
	return w.HasTemperature() && w.HasHumidity() && w.HasOcean()
}

func (b Biome) Execute(w *world.World, _ int64) error {
	if b.Table == nil {
		return fmt.Errorf("no biome table loaded")
	}
	tth := w.TemperatureThresholds()
	hth := w.HumidityThresholds()
	g := grid.New[uint8](w.Width(), w.Height())
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if w.IsOcean(x, y) {
				depth := float32(1)
				if w.HasSeaDepth() {
					depth = w.SeaDepthAt(x, y)
				}
				g.Set(x, y, b.Table.Water(depth))
				continue
			}
			t := world.Band(tth, w.TemperatureAt(x, y))
			h := world.Band(hth, w.HumidityAt(x, y))
			g.Set(x, y, b.Table.Land(t, h))
		}
	}
	return w.SetBiome(g, b.Table.Names())
}
